// Package escrow implements the staked-challenge state machine.
//
// The engine:
//  1. Registers challenges with a schedule, a stake and a goal kind
//  2. Takes stakes into a per-challenge treasury when participants join
//  3. Adjudicates completion after end_time, within a fixed window, either
//     from an operator-submitted score or from peer votes
//  4. Refunds the stake exactly once to participants who passed
//
// Every operation is one unit of work on the Store. The engine holds no
// locks; one-shot flags on the records are the replay protection.
package escrow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aaas-network/aaas/internal/domain"
	"github.com/aaas-network/aaas/internal/infra/observability"
)

// Operation names used for spans, metrics and logs.
const (
	OpInitializeRegistry = "initialize_registry"
	OpCreateChallenge    = "create_challenge"
	OpJoin               = "join"
	OpRecordVerification = "record_verification"
	OpCastVote           = "cast_vote"
	OpClaim              = "claim"
	OpDeposit            = "deposit"
)

// Engine runs escrow operations against a Store.
type Engine struct {
	store      domain.Store
	now        func() time.Time
	decimals   uint8
	logger     *slog.Logger
	tracer     trace.Tracer
	sink       func(domain.Event)
	strategies map[domain.GoalKind]strategy
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Times are compared in unix seconds.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDecimals sets the token precision passed to every custody transfer.
func WithDecimals(decimals uint8) Option {
	return func(e *Engine) { e.decimals = decimals }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithEventSink receives an Event after each committed operation.
// The sink is called synchronously and must not block.
func WithEventSink(sink func(domain.Event)) Option {
	return func(e *Engine) { e.sink = sink }
}

// New creates an engine over store.
func New(store domain.Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		now:        time.Now,
		decimals:   6,
		logger:     slog.Default(),
		tracer:     observability.Tracer("github.com/aaas-network/aaas/escrow"),
		strategies: defaultStrategies(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "escrow")
	return e
}

// Decimals returns the token precision the engine transfers at.
func (e *Engine) Decimals() uint8 {
	return e.decimals
}

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() int64 {
	return e.now().Unix()
}

// unitFunc is the body of one operation. It returns the event to publish
// once the unit has committed, or nil.
type unitFunc func(ctx context.Context, tx domain.Tx, now int64) (*domain.Event, error)

// run executes fn as one unit of work with tracing, metrics and logging.
// Events are only published after commit.
func (e *Engine) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn unitFunc) (err error) {
	ctx, end := observability.StartSpan(ctx, e.tracer, "escrow."+op, attrs...)
	defer func() {
		end(err)
		observability.ObserveOperation(op, err)
	}()

	now := e.Now()
	var event *domain.Event
	err = e.store.Atomic(ctx, func(tx domain.Tx) error {
		var ferr error
		event, ferr = fn(ctx, tx, now)
		return ferr
	})
	if err != nil {
		e.logFailure(op, attrs, err)
		return err
	}

	if event != nil {
		event.ID = uuid.NewString()
		event.At = now
		e.logger.Info("committed", logAttrs(op, attrs, slog.String("event", string(event.Type)))...)
		if e.sink != nil {
			e.sink(*event)
		}
	}
	return nil
}

// read executes fn as one unit of work without metrics or events.
func (e *Engine) read(ctx context.Context, fn func(tx domain.Tx) error) error {
	return e.store.Atomic(ctx, fn)
}

func (e *Engine) logFailure(op string, attrs []attribute.KeyValue, err error) {
	if domain.IsRejection(err) {
		e.logger.Debug("rejected", logAttrs(op, attrs,
			slog.String("category", string(domain.CategoryOf(err))),
			slog.String("error", err.Error()))...)
		return
	}
	e.logger.Error("unit of work failed", logAttrs(op, attrs, slog.String("error", err.Error()))...)
}

func logAttrs(op string, attrs []attribute.KeyValue, extra ...slog.Attr) []any {
	out := make([]any, 0, len(attrs)+len(extra)+1)
	out = append(out, slog.String("op", op))
	for _, kv := range attrs {
		out = append(out, slog.String(string(kv.Key), kv.Value.Emit()))
	}
	for _, a := range extra {
		out = append(out, a)
	}
	return out
}

// ─── Record Lookups ─────────────────────────────────────────────────────────

// mustChallenge loads a challenge or returns ErrChallengeNotFound. Ids above
// MaxStorable can never have been created.
func mustChallenge(tx domain.Tx, id uint64) (*domain.Challenge, error) {
	if id > domain.MaxStorable {
		return nil, domain.ErrChallengeNotFound
	}
	c, err := tx.GetChallenge(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrChallengeNotFound
	}
	return c, nil
}

// joinedMembership returns the participant's membership, or
// ErrDidNotParticipate if they never joined.
func joinedMembership(tx domain.Tx, challengeID uint64, participant string) (*domain.Membership, error) {
	m, err := tx.GetMembership(challengeID, participant)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.Joined {
		return nil, domain.ErrDidNotParticipate
	}
	return m, nil
}

// checkWindow enforces the verification window [end, end+window).
func checkWindow(c *domain.Challenge, now int64) error {
	if now < c.EndTime {
		return domain.ErrChallengeNotEnded
	}
	if now >= c.VerificationDeadline() {
		return domain.ErrVerificationWindowExpired
	}
	return nil
}

func challengeAttrs(id uint64, participant string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int64("challenge_id", int64(id))}
	if participant != "" {
		attrs = append(attrs, attribute.String("participant", participant))
	}
	return attrs
}

func boolPtr(b bool) *bool { return &b }

func checkIdentity(id string) error {
	if id == "" {
		return domain.ErrInvalidIdentity
	}
	return nil
}
