package localid

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// enc is base32hex without padding. Unlike standard base32 it preserves
// lexical order, so ids with a leading big-endian timestamp sort by mint
// time.
var enc = base32.HexEncoding.WithPadding(base32.NoPadding)

// New returns a prefixed, time-sortable local identifier for records minted
// on the terminal (queued operations, cart lines). These ids only need to be
// unique within one terminal's lifetime; the remote system assigns its own.
func New(prefix string) string {
	var buf [14]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixNano()))
	if _, err := rand.Read(buf[8:]); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return prefix + "-" + strings.ToLower(enc.EncodeToString(buf[:]))
}
