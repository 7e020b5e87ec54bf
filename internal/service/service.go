package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vx-continuous/internal/cache"
	"vx-continuous/internal/config"
	"vx-continuous/internal/contract"
	"vx-continuous/internal/fetcher"
	"vx-continuous/internal/market"
	"vx-continuous/internal/notify"
	"vx-continuous/internal/roll"
	"vx-continuous/internal/scheduler"
	"vx-continuous/internal/series"
	"vx-continuous/internal/storage"
)

// Service orchestrates the scheduled pipeline: fetch the chain, resolve the
// roll schedule, build (or reuse) the continuous series through the cache
// manager, and publish a summary.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.ContractFetcher
	cache     *cache.Manager
	notifier  notify.Notifier
	logger    zerolog.Logger

	underlying string
	policy     roll.Policy
	adjust     roll.Adjustment
	lookback   int
	locker     storage.AdvisoryLocker
	lockKey    int64
	pruner     BuildPruner
	retention  time.Duration
}

// BuildPruner removes persisted builds older than a cutoff.
type BuildPruner interface {
	DeleteBuildsBefore(ctx context.Context, olderThan time.Time) error
}

// New constructs the rebuild service.
func New(cfg *config.Config, sched *scheduler.Scheduler, f fetcher.ContractFetcher, manager *cache.Manager, locker storage.AdvisoryLocker, pruner BuildPruner, notifier notify.Notifier, logger zerolog.Logger) (*Service, error) {
	policy, err := cfg.RollPolicy()
	if err != nil {
		return nil, err
	}
	adjust, err := cfg.Adjustment()
	if err != nil {
		return nil, err
	}

	return &Service{
		scheduler:  sched,
		fetcher:    f,
		cache:      manager,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		underlying: cfg.Build.Underlying,
		policy:     policy,
		adjust:     adjust,
		lookback:   cfg.Build.LookbackYears,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		pruner:     pruner,
		retention:  cfg.Database.Retention,
	}, nil
}

// Run begins the aligned rebuild loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket 执行单个时间桶的重建逻辑。
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	if _, err = s.Rebuild(ctx, bucket); err != nil {
		return err
	}

	if s.pruner != nil && s.retention > 0 {
		cutoff := bucket.Add(-s.retention)
		if pruneErr := s.pruner.DeleteBuildsBefore(ctx, cutoff); pruneErr != nil {
			s.logger.Warn().Err(pruneErr).Time("cutoff", cutoff).Msg("failed to prune stale builds")
		}
	}
	return nil
}

// Rebuild fetches the chain for the configured lookback window ending at the
// last settled trading day and returns the continuous series, reusing a
// cached build when neither the data nor the policies changed.
func (s *Service) Rebuild(ctx context.Context, now time.Time) (*series.ContinuousSeries, error) {
	end := market.LastSettledDay(now)
	start := end.AddDate(-s.lookback, 0, 0)

	chain, err := fetcher.FetchChain(ctx, s.fetcher, s.underlying, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch chain: %w", err)
	}

	// The final fetched month exists only as the blend's second leg; its
	// roll date lies beyond observed data, so the stitch excludes it.
	buildChain := chain
	if chain.Len() > 1 {
		buildChain, err = contract.NewChain(chain.Underlying(), chain.Contracts()[:chain.Len()-1])
		if err != nil {
			return nil, err
		}
	}

	key := cache.KeyForChain(buildChain, s.policy, s.adjust, start, end)
	fingerprint := key.Fingerprint()

	built := false
	ser, err := s.cache.GetOrBuild(ctx, fingerprint, func(ctx context.Context) (*series.ContinuousSeries, error) {
		built = true
		rolls, resolveErr := roll.Resolve(buildChain, s.policy, s.adjust)
		if resolveErr != nil {
			return nil, resolveErr
		}
		return series.Build(series.Request{
			Chain:      buildChain,
			Rolls:      rolls,
			Adjustment: s.adjust,
			RollPolicy: s.policy.String(),
			Start:      start,
			End:        end,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("fingerprint", fingerprint[:12]).
		Bool("rebuilt", built).
		Int("points", len(ser.Points)).
		Int("rolls", len(ser.Rolls)).
		Time("range_start", ser.Start).
		Time("range_end", ser.End).
		Msg("continuous series ready")

	if built && s.notifier != nil {
		if notifyErr := s.notifier.Notify(ctx, s.summarize(chain, ser, fingerprint)); notifyErr != nil {
			s.logger.Error().Err(notifyErr).Msg("failed to dispatch summary")
		}
	}

	return ser, nil
}

func (s *Service) summarize(chain *contract.Chain, ser *series.ContinuousSeries, fingerprint string) notify.Summary {
	summary := notify.Summary{
		Underlying:   ser.Underlying,
		RollsApplied: len(ser.Rolls),
		Fingerprint:  fingerprint,
	}
	if len(ser.Points) > 0 {
		last := ser.Points[len(ser.Points)-1]
		summary.TradeDate = last.Date
		summary.FrontSymbol = last.Symbol
		summary.ContinuousClose = last.Price

		if blend, err := series.ConstantMaturity(chain, ser.Rolls, last.Date, last.Date); err == nil && len(blend) > 0 {
			summary.ConstantMaturity = blend[len(blend)-1].Value
		}

		for i, c := range chain.Contracts() {
			if c.Symbol() != last.Symbol || i+1 >= chain.Len() {
				continue
			}
			if date, err := s.policy.RollDate(c, chain.Contracts()[i+1]); err == nil {
				summary.NextRollDate = date
			}
			break
		}
	}
	return summary
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
