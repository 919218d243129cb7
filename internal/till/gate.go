package till

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erpwoosync/cianbox-pos-sub000/internal/domain"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/metrics"
	"github.com/erpwoosync/cianbox-pos-sub000/internal/remote"
)

// Gate mirrors the authoritative cash-drawer session for one terminal and
// answers whether a sale may proceed. The mirror is read-mostly: it is
// refreshed on a fixed interval and after every mutating cash call, and the
// whole cached record is replaced on each read — fields are never merged.
type Gate struct {
	client   *remote.Client
	posID    string
	required bool
	log      *zap.Logger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	session   *domain.CashSession
	fetchedAt time.Time
}

type Options struct {
	PosID string
	// Required controls whether an OPEN session gates sales. Deployments
	// without mandatory cash-session control run with Required false.
	Required bool
}

func NewGate(client *remote.Client, opts Options, log *zap.Logger, m *metrics.Metrics) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Gate{
		client:   client,
		posID:    opts.PosID,
		required: opts.Required,
		log:      log,
		metrics:  m,
	}
}

// Refresh replaces the mirror with the current remote session. When the
// remote is unreachable the prior mirror stands and the error is returned
// for the caller's bookkeeping.
func (g *Gate) Refresh(ctx context.Context) error {
	session, err := g.client.CurrentSession(ctx, g.posID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			g.swap(nil)
			return nil
		}
		if remote.IsOffline(err) {
			g.log.Debug("session refresh skipped, offline", zap.Error(err))
		}
		return err
	}
	g.swap(mapSession(session))
	return nil
}

// Session returns a copy of the mirrored record, nil when no session
// exists.
func (g *Gate) Session() *domain.CashSession {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	copied := *g.session
	return &copied
}

// LastRefreshed reports when the mirror was last replaced.
func (g *Gate) LastRefreshed() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fetchedAt
}

// CanMakeSale is the single predicate consulted before a sale. The reason
// string is surfaced verbatim to the operator.
func (g *Gate) CanMakeSale() (bool, string) {
	if !g.required {
		return true, ""
	}

	g.mu.RLock()
	session := g.session
	g.mu.RUnlock()

	if session == nil {
		return false, "no cash session is open"
	}
	switch session.Status {
	case domain.SessionOpen:
		return true, ""
	case domain.SessionCounting:
		return false, "turn is in the closing process"
	case domain.SessionSuspended:
		return false, "cash session is suspended"
	case domain.SessionClosed:
		return false, "cash session is closed"
	case domain.SessionTransferred:
		return false, "cash session was transferred"
	default:
		return false, fmt.Sprintf("cash session is in state %s", session.Status)
	}
}

// DisplayText derives the presentation string shown in the status bar.
func (g *Gate) DisplayText() string {
	if !g.required {
		return "cash control disabled"
	}

	g.mu.RLock()
	session := g.session
	g.mu.RUnlock()

	if session == nil {
		return "no session"
	}
	switch session.Status {
	case domain.SessionOpen:
		return fmt.Sprintf("session open — %s", session.OperatorName)
	case domain.SessionSuspended:
		return "session suspended"
	case domain.SessionCounting:
		return "closing in progress"
	case domain.SessionClosed:
		return "session closed"
	case domain.SessionTransferred:
		return "session transferred"
	default:
		return session.Status
	}
}

// Open starts a session with the given opening float.
func (g *Gate) Open(ctx context.Context, operatorID string, opening decimal.Decimal) error {
	if opening.IsNegative() {
		return fmt.Errorf("%w: opening amount must not be negative", domain.ErrValidation)
	}
	return g.act(ctx, "/api/cash-sessions/open", map[string]any{
		"posId":         g.posID,
		"operatorId":    operatorID,
		"openingAmount": opening,
	})
}

// Close closes the session with the counted closing amount.
func (g *Gate) Close(ctx context.Context, closing decimal.Decimal) error {
	if closing.IsNegative() {
		return fmt.Errorf("%w: closing amount must not be negative", domain.ErrValidation)
	}
	return g.act(ctx, "/api/cash-sessions/close", map[string]any{
		"posId":         g.posID,
		"closingAmount": closing,
	})
}

func (g *Gate) Suspend(ctx context.Context) error {
	return g.act(ctx, "/api/cash-sessions/suspend", map[string]any{"posId": g.posID})
}

func (g *Gate) Resume(ctx context.Context) error {
	return g.act(ctx, "/api/cash-sessions/resume", map[string]any{"posId": g.posID})
}

func (g *Gate) Deposit(ctx context.Context, amount decimal.Decimal, note string) error {
	return g.movement(ctx, domain.MovementDeposit, amount, note)
}

func (g *Gate) Withdraw(ctx context.Context, amount decimal.Decimal, note string) error {
	return g.movement(ctx, domain.MovementWithdrawal, amount, note)
}

func (g *Gate) movement(ctx context.Context, kind string, amount decimal.Decimal, note string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: movement amount must be positive", domain.ErrValidation)
	}
	return g.act(ctx, "/api/cash-sessions/movements", map[string]any{
		"posId":  g.posID,
		"type":   kind,
		"amount": amount,
		"note":   note,
	})
}

// act executes a remote mutation and swaps in the session it returns,
// which is the post-mutation refresh the protocol requires.
func (g *Gate) act(ctx context.Context, path string, body map[string]any) error {
	session, err := g.client.SessionAction(ctx, path, body)
	if err != nil {
		return err
	}
	g.swap(mapSession(session))
	return nil
}

func (g *Gate) swap(session *domain.CashSession) {
	g.mu.Lock()
	g.session = session
	g.fetchedAt = time.Now().UTC()
	g.mu.Unlock()

	ok, _ := g.CanMakeSale()
	if ok {
		g.metrics.GateSalePermitted.Set(1)
	} else {
		g.metrics.GateSalePermitted.Set(0)
	}
}

func mapSession(s *remote.CashSession) *domain.CashSession {
	if s == nil {
		return nil
	}
	return &domain.CashSession{
		ID:             s.ID,
		Status:         s.Status,
		PosID:          s.PosID,
		OperatorID:     s.OperatorID,
		OperatorName:   s.OperatorName,
		OpeningAmount:  s.OpeningAmount,
		ClosingAmount:  s.ClosingAmount,
		ExpectedAmount: s.ExpectedAmount,
		SalesCount:     s.SalesCount,
		MovementsCount: s.MovementsCount,
		OpenedAt:       s.OpenedAt,
		ClosedAt:       s.ClosedAt,
	}
}
