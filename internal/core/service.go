package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mocacore/internal/blob"
	"mocacore/internal/infra/persistence/memory"
	"mocacore/internal/scoring"
	"mocacore/pkg/domain"
)

// DefaultStorageTimeout bounds every storage call when no timeout is configured.
const DefaultStorageTimeout = 5 * time.Second

// Service exposes the transactional operations of the assessment backend:
// users, sessions, section result recording, reports and administration.
type Service struct {
	store          PersistentStore
	aggregator     *scoring.Aggregator
	clock          Clock
	logger         *zap.Logger
	metrics        MetricsRecorder
	tracer         Tracer
	artifacts      blob.Store
	storageTimeout time.Duration
	expectedCity   string
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the span factory.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithArtifactStore enables archiving of drawing submissions.
func WithArtifactStore(store blob.Store) ServiceOption {
	return func(s *Service) { s.artifacts = store }
}

// WithStorageTimeout bounds each storage call. Non-positive values keep the default.
func WithStorageTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storageTimeout = d
		}
	}
}

// WithExpectedCity sets the city orientation answers are checked against.
// Empty accepts any non-empty answer.
func WithExpectedCity(city string) ServiceOption {
	return func(s *Service) { s.expectedCity = city }
}

func newService(opts []ServiceOption) *Service {
	s := &Service{
		clock:          ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:         zap.NewNop(),
		metrics:        noopMetrics{},
		tracer:         noopTracer{},
		storageTimeout: DefaultStorageTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.aggregator = scoring.NewAggregator(scoring.WithClock(s.clock.Now))
	return s
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := newService(opts)
	s.store = store
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	s := newService(opts)
	s.store = memory.NewStore(engine, memory.WithClock(s.clock.Now))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

// Now returns the service clock reading.
func (s *Service) Now() time.Time { return s.clock.Now() }

// run wraps one service operation with a storage deadline, a trace span,
// a metrics observation and a log line.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()

	err := fn(ctx)
	if err != nil && ctx.Err() != nil && !errors.Is(err, domain.ErrTransient) {
		err = domain.TransientError{Op: op, Err: err}
	}

	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	switch {
	case err == nil:
		s.logger.Debug("operation completed", zap.String("op", op), zap.Duration("elapsed", elapsed))
	case errors.Is(err, domain.ErrTransient):
		s.logger.Warn("operation failed", zap.String("op", op), zap.Duration("elapsed", elapsed), zap.Error(err))
	default:
		s.logger.Info("operation rejected", zap.String("op", op), zap.Error(err))
	}
	return err
}

// transact runs fn in one store transaction and logs non-blocking violations.
func (s *Service) transact(ctx context.Context, fn func(tx Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity == SeverityBlock {
			continue
		}
		s.logger.Warn("rule violation",
			zap.String("rule", v.Rule),
			zap.String("severity", string(v.Severity)),
			zap.String("entity", string(v.Entity)),
			zap.String("entity_id", v.EntityID),
			zap.String("message", v.Message),
		)
	}
	return err
}

// view runs fn against a consistent read snapshot.
func (s *Service) view(ctx context.Context, fn func(view TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return domain.TransientError{Op: "view", Err: err}
	}
	return s.store.View(ctx, fn)
}
