package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/circuit"
)

// Submitter wraps a Client with the caller-side submission policy: per-fact
// key reservation, a bounded timeout, retry with the same idempotency key,
// and a circuit breaker so a degraded ledger fails fast. It translates ledger
// errors into the domain taxonomy.
type Submitter struct {
	client  Client
	keys    KeyStore
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	retries int
	tracer  trace.Tracer
}

func NewSubmitter(client Client, keys KeyStore, cfg config.LedgerConfig, logger *slog.Logger, m *metrics.Metrics) *Submitter {
	return &Submitter{
		client:  client,
		keys:    keys,
		breaker: circuit.New("ledger", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:  logger,
		metrics: m,
		timeout: cfg.SubmitTimeout,
		retries: cfg.MaxRetries,
		tracer:  otel.Tracer("custodia/ledger"),
	}
}

// Mint submits a mint fact under the submission policy.
func (s *Submitter) Mint(ctx context.Context, fact MintFact) (MintReceipt, error) {
	var receipt MintReceipt
	err := s.submit(ctx, "ledger.mint", fact.IdempotencyKey, func(ctx context.Context) error {
		var err error
		receipt, err = s.client.Mint(ctx, fact)
		return err
	})
	return receipt, err
}

// SubmitCustody submits a custody fact under the submission policy.
func (s *Submitter) SubmitCustody(ctx context.Context, fact CustodyFact) (Anchor, error) {
	var anchor Anchor
	err := s.submit(ctx, "ledger.custody", fact.IdempotencyKey, func(ctx context.Context) error {
		var err error
		anchor, err = s.client.SubmitCustody(ctx, fact)
		return err
	})
	return anchor, err
}

// SubmitVerification submits a verification fact under the submission policy.
func (s *Submitter) SubmitVerification(ctx context.Context, fact VerificationFact) (Anchor, error) {
	var anchor Anchor
	err := s.submit(ctx, "ledger.verify", fact.IdempotencyKey, func(ctx context.Context) error {
		var err error
		anchor, err = s.client.SubmitVerification(ctx, fact)
		return err
	})
	return anchor, err
}

// TokenState reads the ledger view; reads bypass the submission policy.
func (s *Submitter) TokenState(ctx context.Context, productToken uint64) (TokenState, error) {
	state, err := s.client.TokenState(ctx, productToken)
	if errors.Is(err, ErrUnknownToken) {
		return TokenState{}, dErrors.New(dErrors.CodeNotFound, "unknown ledger token")
	}
	return state, err
}

func (s *Submitter) submit(ctx context.Context, op, key string, call func(context.Context) error) error {
	if s.breaker.IsOpen() {
		s.metrics.LedgerTimeouts.Inc()
		return dErrors.New(dErrors.CodeLedgerTimeout, "ledger circuit open")
	}

	reserved, err := s.keys.Reserve(ctx, key, s.timeout)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "reserve idempotency key", err)
	}
	if !reserved {
		return dErrors.New(dErrors.CodeConflict, "submission already in flight for this fact")
	}
	defer func() {
		_ = s.keys.Release(context.WithoutCancel(ctx), key)
	}()

	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := call(attemptCtx)
		cancel()
		s.metrics.LedgerSubmitSeconds.Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			s.breaker.RecordSuccess()
			return nil
		case errors.Is(err, ErrNotConfirmed):
			// Retryable: same idempotency key, the ledger cannot
			// double-record.
			s.metrics.LedgerTimeouts.Inc()
			if _, change := s.breaker.RecordFailure(); change.Opened {
				s.logger.WarnContext(ctx, "ledger circuit opened", "op", op)
			}
			lastErr = err
			s.logger.WarnContext(ctx, "ledger submission not confirmed, retrying",
				"op", op, "attempt", attempt+1)
		case errors.Is(err, ErrRejected):
			s.breaker.RecordSuccess() // the ledger answered; not an outage
			return dErrors.New(dErrors.CodeLedgerMismatch, "ledger rejected fact inconsistent with chain state")
		case errors.Is(err, ErrUnknownToken):
			s.breaker.RecordSuccess()
			return dErrors.New(dErrors.CodeLedgerMismatch, "ledger does not know this token")
		default:
			s.breaker.RecordFailure()
			return dErrors.Wrap(dErrors.CodeInternal, "ledger submission failed", err)
		}

		if s.breaker.IsOpen() {
			break
		}
	}
	return dErrors.Wrap(dErrors.CodeLedgerTimeout, "anchor not confirmed in time", lastErr)
}
