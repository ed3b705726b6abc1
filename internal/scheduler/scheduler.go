package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/sugarbridge/activity-engine/internal/activity"
	"github.com/sugarbridge/activity-engine/internal/observability"
)

// Scheduler runs the 1Hz tick loop: each second it claims every due
// activity id and hands it to a Processor, bounded by a counting
// semaphore so one slow upstream provider can't unbound the number of
// in-flight goroutines.
type Scheduler struct {
	Store     activity.Store
	Processor *Processor
	Config    Config

	breaker *CircuitBreaker
	sem     chan struct{}
}

// New builds a Scheduler ready to Start.
func New(store activity.Store, proc *Processor, cfg Config) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = DefaultConfig().CircuitBreakerThreshold
	}
	return &Scheduler{
		Store:     store,
		Processor: proc,
		Config:    cfg,
		breaker:   NewCircuitBreaker(cfg.CircuitBreakerThreshold),
		sem:       make(chan struct{}, cfg.MaxConcurrency),
	}
}

// Start runs the tick loop until ctx is cancelled. Fire-and-forget per
// tick: Start does not wait for a tick's dispatched processors before
// the next tick fires — the claim rescore is what keeps re-entry rare.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		observability.TickDuration.Observe(time.Since(start).Seconds())
	}()

	if !s.breaker.Allow() {
		observability.CircuitState.WithLabelValues(s.breaker.State().String()).Set(1)
		return
	}

	now := time.Now()
	ids, err := s.Store.DueBefore(ctx, now)
	if err != nil {
		log.Printf("scheduler: DueBefore failed: %v", err)
		s.breaker.RecordFailure()
		return
	}
	s.breaker.RecordSuccess()
	observability.DueCount.Set(float64(len(ids)))

	if len(ids) == 0 {
		return
	}

	// Claim by rescoring to now+MaxInterval before dispatching: if a
	// processor crashes mid-cycle the bumped score is itself the next
	// retry.
	if err := s.Store.Claim(ctx, ids, now.Add(MaxInterval)); err != nil {
		log.Printf("scheduler: claim failed: %v", err)
		return
	}

	for _, id := range ids {
		id := id
		select {
		case s.sem <- struct{}{}:
		default:
			// Concurrency budget exhausted this tick; the claim
			// rescore already guarantees this id is retried within
			// MaxInterval, so it's safe to skip it for now.
			continue
		}
		observability.ActiveProcessors.Inc()
		go func() {
			defer func() {
				<-s.sem
				observability.ActiveProcessors.Dec()
				if r := recover(); r != nil {
					log.Printf("scheduler: processor panic for %s: %v", id, r)
				}
			}()
			s.Processor.ProcessOne(ctx, id)
		}()
	}
}
