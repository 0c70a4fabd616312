package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vylinhq/vylin/internal/clock"
	"github.com/vylinhq/vylin/internal/config"
	"github.com/vylinhq/vylin/internal/observability/logger"
	obsmetrics "github.com/vylinhq/vylin/internal/observability/metrics"
	quotadomain "github.com/vylinhq/vylin/internal/quota/domain"
	"github.com/vylinhq/vylin/internal/quota/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const anonymousIdentity = "anonymous"

// errContention signals that the retry bound was exhausted without a
// definitive decision. On the remote path it triggers the same degradation
// as a store failure.
var errContention = errors.New("charge contention: retry bound exhausted")

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Cfg      config.Config
	Policy   *config.QuotaPolicyHolder
	Remote   *store.GormStore
	Fallback *store.MemoryStore
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Service implements the quota ledger with an optimistic-concurrency retry
// loop against the remote store and degradation to the in-process fallback.
type Service struct {
	log        *zap.Logger
	clock      clock.Clock
	policy     *config.QuotaPolicyHolder
	remote     store.Store
	fallback   store.Store
	failClosed bool
	metrics    *obsmetrics.Metrics
}

var _ quotadomain.Ledger = (*Service)(nil)

func NewService(p ServiceParam) quotadomain.Ledger {
	return &Service{
		log:        p.Log.Named("quota.ledger"),
		clock:      p.Clock,
		policy:     p.Policy,
		remote:     p.Remote,
		fallback:   p.Fallback,
		failClosed: p.Cfg.QuotaFailClosed,
		metrics:    p.Metrics,
	}
}

// New wires a ledger from explicit collaborators. Used by tests and by
// callers outside the fx graph.
func New(log *zap.Logger, clk clock.Clock, policy *config.QuotaPolicyHolder, remote, fallback store.Store, failClosed bool) *Service {
	return &Service{
		log:        log,
		clock:      clk,
		policy:     policy,
		remote:     remote,
		fallback:   fallback,
		failClosed: failClosed,
	}
}

// Charge admits or denies one request of the given category for identity.
// Cooldown and limit checks are evaluated against the same snapshot that is
// then atomically advanced; a lost write race re-reads and retries up to the
// policy's bound before degrading.
func (s *Service) Charge(ctx context.Context, identity string, category quotadomain.Category) (quotadomain.ChargeResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = anonymousIdentity
	}

	policy := s.policy.Get()
	cost, err := policy.CostOf(string(category))
	if err != nil {
		return quotadomain.ChargeResult{}, err
	}

	now := s.clock.Now().UTC()
	date := now.Format(quotadomain.DateLayout)

	result, err := s.chargeAgainst(ctx, s.remote, identity, date, now, cost, policy)
	if err == nil {
		s.record(ctx, category, result)
		return result, nil
	}

	cause := "store-error"
	if errors.Is(err, errContention) {
		cause = "contention"
	}
	s.log.Warn("remote usage store degraded",
		zap.String("cause", cause),
		zap.Error(err),
	)
	if s.metrics != nil {
		s.metrics.RecordFallbackActivation(ctx, cause)
	}

	if s.failClosed {
		result = quotadomain.ChargeResult{
			Allowed:   false,
			Cost:      cost,
			Remaining: 0,
			Limit:     policy.DailyLimit,
			Reason:    quotadomain.ReasonStoreUnavailable,
			Degraded:  true,
		}
		s.record(ctx, category, result)
		return result, nil
	}

	result, err = s.chargeAgainst(ctx, s.fallback, identity, date, now, cost, policy)
	if err != nil {
		// The fallback store cannot fail; only in-process contention can
		// exhaust the bound here.
		result = quotadomain.ChargeResult{
			Allowed:   false,
			Cost:      cost,
			Remaining: 0,
			Limit:     policy.DailyLimit,
			Reason:    quotadomain.ReasonContention,
		}
	}
	result.Degraded = true
	s.record(ctx, category, result)
	return result, nil
}

// chargeAgainst runs the read / validate / conditional-write loop against
// one store. It returns an error only for store unavailability or an
// exhausted retry bound; business denials are normal results.
func (s *Service) chargeAgainst(ctx context.Context, st store.Store, identity, date string, now time.Time, cost int, policy config.QuotaPolicy) (quotadomain.ChargeResult, error) {
	limit := policy.DailyLimit

	snap, err := st.ReadSnapshot(ctx, identity, date)
	if err != nil {
		return quotadomain.ChargeResult{}, err
	}

	if !snap.Exists {
		if cost > limit {
			// No row is ever created for an uncharged request.
			return s.deny(cost, limit, limit, quotadomain.ReasonDailyLimit), nil
		}
		inserted, err := st.InsertIfAbsent(ctx, identity, date, cost, now)
		if err != nil {
			return quotadomain.ChargeResult{}, err
		}
		if inserted {
			return s.allow(cost, limit, cost), nil
		}
		// A concurrent writer created the row first; re-read and fall
		// through to the update loop.
		snap, err = st.ReadSnapshot(ctx, identity, date)
		if err != nil {
			return quotadomain.ChargeResult{}, err
		}
	}

	for attempt := 0; attempt < policy.RetryAttempts; attempt++ {
		if snap.LastChargeAt != nil && now.Sub(*snap.LastChargeAt) < policy.Cooldown {
			return s.deny(cost, limit, limit-snap.Used, quotadomain.ReasonCooldown), nil
		}
		if snap.Used+cost > limit {
			return s.deny(cost, limit, limit-snap.Used, quotadomain.ReasonDailyLimit), nil
		}

		updated, err := st.ConditionalUpdate(ctx, identity, date, snap, snap.Used+cost, now)
		if err != nil {
			return quotadomain.ChargeResult{}, err
		}
		if updated {
			return s.allow(cost, limit, snap.Used+cost), nil
		}

		snap, err = st.ReadSnapshot(ctx, identity, date)
		if err != nil {
			return quotadomain.ChargeResult{}, err
		}
	}

	return quotadomain.ChargeResult{}, errContention
}

func (s *Service) allow(cost, limit, used int) quotadomain.ChargeResult {
	return quotadomain.ChargeResult{
		Allowed:   true,
		Cost:      cost,
		Remaining: clampRemaining(limit - used),
		Limit:     limit,
	}
}

func (s *Service) deny(cost, limit, remaining int, reason quotadomain.Reason) quotadomain.ChargeResult {
	return quotadomain.ChargeResult{
		Allowed:   false,
		Cost:      cost,
		Remaining: clampRemaining(remaining),
		Limit:     limit,
		Reason:    reason,
	}
}

func (s *Service) record(ctx context.Context, category quotadomain.Category, result quotadomain.ChargeResult) {
	log := logger.WithContext(ctx, s.log)
	if result.Allowed {
		log.Debug("charge allowed",
			zap.String("category", string(category)),
			zap.Int("cost", result.Cost),
			zap.Int("remaining", result.Remaining),
			zap.Bool("degraded", result.Degraded),
		)
		if s.metrics != nil {
			s.metrics.RecordChargeAllowed(ctx, string(category), result.Degraded)
		}
		return
	}
	log.Debug("charge denied",
		zap.String("category", string(category)),
		zap.String("reason", string(result.Reason)),
		zap.Int("remaining", result.Remaining),
		zap.Bool("degraded", result.Degraded),
	)
	if s.metrics != nil {
		s.metrics.RecordChargeDenied(ctx, string(category), string(result.Reason), result.Degraded)
	}
}

func clampRemaining(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
