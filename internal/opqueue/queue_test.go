package opqueue

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/store"
)

type salePayload struct {
	Total string `json:"total"`
}

func newTestQueue(t *testing.T, serverURL string, sealKey []byte) (*Queue, *store.Store) {
	t.Helper()
	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	client := remote.NewClient(serverURL, "", time.Second, zap.NewNop())
	q, err := New(st, client, Options{TenantID: "t1", MaxRetries: 5, SealKey: sealKey}, zap.NewNop(), nil)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return q, st
}

func TestSubmitDeliversWhenOnline(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body salePayload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Total != "10.00" {
			t.Errorf("unexpected payload: %+v (%v)", body, err)
		}
		fmt.Fprint(w, `{"success":true,"data":{"id":"sale-remote-1"}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, nil)
	outcome, err := q.Submit(context.Background(), domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "10.00"}, "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !outcome.Delivered || outcome.Queued {
		t.Fatalf("expected direct delivery, got %+v", outcome)
	}
	if !bytes.Contains(outcome.Response, []byte("sale-remote-1")) {
		t.Fatalf("expected remote response passed through, got %s", outcome.Response)
	}

	depth, _ := st.QueueDepth(context.Background(), "t1")
	if depth != 0 {
		t.Fatalf("nothing should be queued, depth %d", depth)
	}
}

func TestSubmitQueuesWhenOffline(t *testing.T) {
	q, st := newTestQueue(t, "http://127.0.0.1:1", nil)

	outcome, err := q.Submit(context.Background(), domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "10.00"}, "sale-local-1")
	if err != nil {
		t.Fatalf("submit while offline must queue, not error: %v", err)
	}
	if !outcome.Queued || outcome.Delivered {
		t.Fatalf("expected queued outcome, got %+v", outcome)
	}

	op, err := st.GetOperation(context.Background(), outcome.OperationID)
	if err != nil {
		t.Fatalf("queued op not persisted: %v", err)
	}
	if op.Status != domain.OpStatusPending || op.LocalRef != "sale-local-1" {
		t.Fatalf("unexpected op: %+v", op)
	}
	if !strings.Contains(string(op.Payload), "10.00") {
		t.Fatalf("payload not stored: %s", op.Payload)
	}
}

func TestSubmitDoesNotQueueClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"error":{"code":"validation","message":"total required"}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, nil)
	_, err := q.Submit(context.Background(), domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{}, "")
	if err == nil {
		t.Fatalf("4xx must surface to the caller")
	}

	depth, _ := st.QueueDepth(context.Background(), "t1")
	if depth != 0 {
		t.Fatalf("4xx must never be queued, depth %d", depth)
	}
}

func TestReplayCompletesWhenConnectivityReturns(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"success":false,"error":{"code":"unavailable","message":"maintenance"}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"id":"sale-remote-2"}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, nil)
	ctx := context.Background()

	outcome, err := q.Submit(ctx, domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "10.00"}, "")
	if err != nil || !outcome.Queued {
		t.Fatalf("expected queued submission, got %+v (%v)", outcome, err)
	}

	// Remote still down: the pass records one failed attempt.
	completed, failed, err := q.ReplayPending(ctx)
	if err != nil || completed != 0 || failed != 1 {
		t.Fatalf("expected one failed attempt, got completed=%d failed=%d err=%v", completed, failed, err)
	}
	op, _ := st.GetOperation(ctx, outcome.OperationID)
	if op.RetryCount != 1 || op.Status != domain.OpStatusFailed || op.LastError == "" {
		t.Fatalf("failure not recorded: %+v", op)
	}

	healthy.Store(true)
	completed, failed, err = q.ReplayPending(ctx)
	if err != nil || completed != 1 || failed != 0 {
		t.Fatalf("expected one completion, got completed=%d failed=%d err=%v", completed, failed, err)
	}

	op, _ = st.GetOperation(ctx, outcome.OperationID)
	if op.Status != domain.OpStatusCompleted {
		t.Fatalf("expected completed, got %s", op.Status)
	}
	if !bytes.Contains(op.Response, []byte("sale-remote-2")) {
		t.Fatalf("response payload not recorded: %s", op.Response)
	}
}

func TestReplayPassTriesEachOperationOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"success":false,"error":{"code":"unavailable","message":"down"}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, nil)
	ctx := context.Background()

	out1, _ := q.Submit(ctx, domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "1.00"}, "")
	out2, _ := q.Submit(ctx, domain.OpTypePayment, http.MethodPost, "/api/payments", salePayload{Total: "2.00"}, "")

	_, failed, err := q.ReplayPending(ctx)
	if err != nil || failed != 2 {
		t.Fatalf("expected both ops to fail exactly once, failed=%d err=%v", failed, err)
	}

	for _, id := range []string{out1.OperationID, out2.OperationID} {
		op, _ := st.GetOperation(ctx, id)
		if op.RetryCount != 1 {
			t.Fatalf("one pass must cost one attempt, op %s has %d", id, op.RetryCount)
		}
	}
}

func TestReplayHeadFailureDoesNotStarveNewerOps(t *testing.T) {
	var acceptPayments atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/payments" && acceptPayments.Load() {
			fmt.Fprint(w, `{"success":true,"data":{"id":"pay-remote-1"}}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"success":false,"error":{"code":"unavailable","message":"down"}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, nil)
	ctx := context.Background()

	sale, _ := q.Submit(ctx, domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "1.00"}, "")
	payment, _ := q.Submit(ctx, domain.OpTypePayment, http.MethodPost, "/api/payments", salePayload{Total: "2.00"}, "")
	acceptPayments.Store(true)

	// The older sale keeps failing; the payment behind it must still get
	// its attempt in the same pass.
	completed, failed, err := q.ReplayPending(ctx)
	if err != nil || completed != 1 || failed != 1 {
		t.Fatalf("expected completed=1 failed=1, got completed=%d failed=%d err=%v", completed, failed, err)
	}

	saleOp, _ := st.GetOperation(ctx, sale.OperationID)
	if saleOp.Status != domain.OpStatusFailed || saleOp.RetryCount != 1 {
		t.Fatalf("sale must have one failed attempt: %+v", saleOp)
	}
	paymentOp, _ := st.GetOperation(ctx, payment.OperationID)
	if paymentOp.Status != domain.OpStatusCompleted {
		t.Fatalf("payment must complete despite the failing sale ahead of it: %+v", paymentOp)
	}
}

func TestReplayExhaustsNonRetryableImmediately(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"success":false,"error":{"code":"unavailable","message":"down"}}`)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"success":false,"error":{"code":"validation","message":"duplicate sale"}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, nil)
	ctx := context.Background()

	outcome, _ := q.Submit(ctx, domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "1.00"}, "")
	healthy.Store(true)
	q.ReplayPending(ctx)

	op, _ := st.GetOperation(ctx, outcome.OperationID)
	if op.Status != domain.OpStatusFailed || op.CanRetry() {
		t.Fatalf("4xx during replay must be terminal: %+v", op)
	}
	if !strings.Contains(op.LastError, "duplicate sale") {
		t.Fatalf("expected remote message recorded, got %q", op.LastError)
	}
}

func TestRecoverResetsCrashedOperations(t *testing.T) {
	q, st := newTestQueue(t, "http://127.0.0.1:1", nil)
	ctx := context.Background()

	outcome, _ := q.Submit(ctx, domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "1.00"}, "")
	if _, err := st.ClaimNextOperation(ctx, "t1", nil); err != nil {
		t.Fatalf("claim: %v", err)
	}

	n, err := q.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 recovered op, got %d (%v)", n, err)
	}
	op, _ := st.GetOperation(ctx, outcome.OperationID)
	if op.Status != domain.OpStatusPending {
		t.Fatalf("crashed op must be pending again, got %s", op.Status)
	}
}

func TestSealedPayloadRoundTrip(t *testing.T) {
	key, _ := hex.DecodeString(strings.Repeat("ab", 32))

	received := make(chan []byte, 1)
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"success":false,"error":{"code":"unavailable","message":"down"}}`)
			return
		}
		var buf bytes.Buffer
		buf.ReadFrom(r.Body)
		received <- buf.Bytes()
		fmt.Fprint(w, `{"success":true,"data":{}}`)
	}))
	defer server.Close()

	q, st := newTestQueue(t, server.URL, key)
	ctx := context.Background()

	outcome, err := q.Submit(ctx, domain.OpTypeSale, http.MethodPost, "/api/sales", salePayload{Total: "10.00"}, "")
	if err != nil || !outcome.Queued {
		t.Fatalf("expected queued, got %+v (%v)", outcome, err)
	}

	// At rest the payload is ciphertext.
	op, _ := st.GetOperation(ctx, outcome.OperationID)
	if !op.Sealed {
		t.Fatalf("expected sealed payload")
	}
	if strings.Contains(string(op.Payload), "10.00") {
		t.Fatalf("payload stored in the clear")
	}

	healthy.Store(true)
	if completed, _, _ := q.ReplayPending(ctx); completed != 1 {
		t.Fatalf("replay of sealed op failed")
	}

	// The remote saw the plaintext.
	select {
	case body := <-received:
		if !strings.Contains(string(body), "10.00") {
			t.Fatalf("remote received wrong payload: %s", body)
		}
	default:
		t.Fatalf("remote never received the payload")
	}
}

func TestSealerRejectsTampering(t *testing.T) {
	key, _ := hex.DecodeString(strings.Repeat("cd", 32))
	sealer, err := NewSealer(key)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	sealed, err := sealer.Seal([]byte(`{"total":"10.00"}`))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0x01
	if _, err := sealer.Open(sealed); err == nil {
		t.Fatalf("tampered payload must not open")
	}
}
