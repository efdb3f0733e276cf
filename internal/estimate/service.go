package estimate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/graded-card-estimator/internal/telemetry"
)

const (
	defaultLookupTimeout = 60 * time.Second
	sideEffectTimeout    = 5 * time.Second
	defaultHistoryLimit  = 20
	maxHistoryLimit      = 100
)

// Config tunes Service behavior.
type Config struct {
	// Topic receives estimate.fetched events; empty disables publishing.
	Topic string
	// LookupTimeout bounds one upstream lookup including rate-limit waits.
	LookupTimeout time.Duration
	// LimiterKey groups lookups under one rate-limit bucket, usually the upstream host.
	LimiterKey string
}

// Deps bundles the collaborators of a Service. Only Looker is required.
type Deps struct {
	Looker    Looker
	Cache     Cache
	Store     LookupStore
	Publisher Publisher
	Limiter   Limiter
	Clock     Clock
	IDs       IDGenerator
}

// Service validates certs and coordinates lookups with their side effects.
type Service struct {
	cfg    Config
	deps   Deps
	group  singleflight.Group
	logger *zap.Logger
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// NewService constructs a Service.
func NewService(cfg Config, deps Deps, logger *zap.Logger) (*Service, error) {
	if deps.Looker == nil {
		return nil, errors.New("looker is required")
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, deps: deps, logger: logger}, nil
}

// Estimate returns the GameStop estimate for rawCert.
func (s *Service) Estimate(ctx context.Context, rawCert string) (Estimate, error) {
	cert, err := ValidateCert(rawCert)
	if err != nil {
		telemetry.ObserveLookup(string(OutcomeInvalidCert), 0)
		return Estimate{}, err
	}

	if est, ok := s.cached(ctx, cert); ok {
		return est, nil
	}

	ch := s.group.DoChan(cert, func() (any, error) {
		return s.lookup(context.WithoutCancel(ctx), cert)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Estimate{}, res.Err
		}
		est, ok := res.Val.(Estimate)
		if !ok {
			return Estimate{}, Unexpected(fmt.Errorf("unexpected lookup result %T", res.Val))
		}
		if res.Shared {
			s.logger.Debug("joined in-flight lookup", zap.String("psa_cert", cert))
		}
		return est, nil
	case <-ctx.Done():
		return Estimate{}, Timeout("Request canceled while waiting for GameStop estimate.", ctx.Err())
	}
}

func (s *Service) cached(ctx context.Context, cert string) (Estimate, bool) {
	if s.deps.Cache == nil {
		return Estimate{}, false
	}
	est, ok, err := s.deps.Cache.Get(ctx, cert)
	if err != nil {
		s.logger.Warn("cache get failed", zap.String("psa_cert", cert), zap.Error(err))
		telemetry.ObserveCache("error")
		return Estimate{}, false
	}
	if !ok {
		telemetry.ObserveCache("miss")
		return Estimate{}, false
	}
	telemetry.ObserveCache("hit")
	return est, true
}

// lookup runs one upstream lookup under the lookup timeout. History, cache and
// publish writes get their own deadline so a timed-out lookup is still recorded.
func (s *Service) lookup(ctx context.Context, cert string) (Estimate, error) {
	ctx, span := otel.Tracer("estimate").Start(ctx, "estimate.lookup")
	span.SetAttributes(attribute.String("psa_cert", cert))
	defer span.End()

	lookupCtx, cancelLookup := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	start := time.Now()
	result, err := s.runLookup(lookupCtx, cert)
	duration := time.Since(start)
	cancelLookup()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	outcome := OutcomeOf(err)
	telemetry.ObserveLookup(string(outcome), duration)
	span.SetAttributes(attribute.String("outcome", string(outcome)))

	record := LookupRecord{
		PSACert:     cert,
		Outcome:     outcome,
		DurationMs:  duration.Milliseconds(),
		SnapshotURI: result.SnapshotURI,
		CreatedAt:   s.deps.Clock.Now(),
	}
	if err != nil {
		lookupErr := AsError(err)
		span.RecordError(lookupErr)
		span.SetStatus(codes.Error, lookupErr.Detail)
		record.Detail = lookupErr.Detail
		if record.SnapshotURI == "" {
			record.SnapshotURI = lookupErr.SnapshotURI
		}
		s.logger.Info("estimate lookup failed",
			zap.String("psa_cert", cert),
			zap.String("outcome", string(outcome)),
			zap.Duration("duration", duration),
			zap.Error(lookupErr),
		)
		s.record(ctx, record)
		return Estimate{}, lookupErr
	}

	est := result.Estimate
	record.Estimate = &est
	s.logger.Info("estimate lookup succeeded",
		zap.String("psa_cert", cert),
		zap.Duration("duration", duration),
	)
	if s.deps.Cache != nil {
		if cacheErr := s.deps.Cache.Set(ctx, cert, est); cacheErr != nil {
			s.logger.Warn("cache set failed", zap.String("psa_cert", cert), zap.Error(cacheErr))
		}
	}
	record.ID = s.record(ctx, record)
	s.publish(ctx, record.ID, est)
	return est, nil
}

func (s *Service) runLookup(ctx context.Context, cert string) (Result, error) {
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.Wait(ctx, s.cfg.LimiterKey); err != nil {
			return Result{}, Timeout("Timed out waiting for an upstream lookup slot.", err)
		}
	}
	return s.deps.Looker.Lookup(ctx, cert)
}

// record persists the history row and returns its ID.
func (s *Service) record(ctx context.Context, record LookupRecord) string {
	if s.deps.IDs != nil {
		id, err := s.deps.IDs.NewID()
		if err != nil {
			s.logger.Warn("lookup id generation failed", zap.Error(err))
		}
		record.ID = id
	}
	if s.deps.Store == nil {
		return record.ID
	}
	if err := s.deps.Store.Record(ctx, record); err != nil {
		s.logger.Warn("lookup history write failed",
			zap.String("psa_cert", record.PSACert),
			zap.Error(err),
		)
	}
	return record.ID
}

func (s *Service) publish(ctx context.Context, lookupID string, est Estimate) {
	if s.deps.Publisher == nil || s.cfg.Topic == "" {
		return
	}
	event := Event{Type: EventTypeFetched, LookupID: lookupID, Estimate: est}
	msgID, err := s.deps.Publisher.Publish(ctx, s.cfg.Topic, event)
	if err != nil {
		s.logger.Warn("estimate event publish failed",
			zap.String("psa_cert", est.PSACert),
			zap.String("topic", s.cfg.Topic),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("estimate event published", zap.String("message_id", msgID))
}

// History returns recent lookups for rawCert, newest first.
func (s *Service) History(ctx context.Context, rawCert string, limit int) ([]LookupRecord, error) {
	cert, err := ValidateCert(rawCert)
	if err != nil {
		return nil, err
	}
	if s.deps.Store == nil {
		return []LookupRecord{}, nil
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	records, err := s.deps.Store.Recent(ctx, cert, limit)
	if err != nil {
		return nil, fmt.Errorf("load lookup history: %w", err)
	}
	return records, nil
}

// Ready pings every backend that supports it.
func (s *Service) Ready(ctx context.Context) error {
	if p, ok := s.deps.Cache.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	if p, ok := s.deps.Store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("lookup store: %w", err)
		}
	}
	return nil
}
