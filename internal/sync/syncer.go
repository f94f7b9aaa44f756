// Package sync runs the poll-merge-dedupe loop against the remote feed.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/peykchat/peyk/internal/feed"
	"github.com/peykchat/peyk/internal/metrics"
	"github.com/peykchat/peyk/internal/models"
	"github.com/peykchat/peyk/internal/store"
)

// pruneEvery is how often the retention sweep runs when enabled.
const pruneEvery = time.Hour

// Options configures a Syncer.
type Options struct {
	PollInterval time.Duration // default 3s
	FetchTimeout time.Duration // default 5s

	// ProcessedRetention > 0 enables hourly pruning of processed-event
	// markers older than the window.
	ProcessedRetention time.Duration

	// OnRefresh is invoked after any cycle that applied new messages, so
	// the render layer can re-derive the active conversation.
	OnRefresh func()
}

// Syncer periodically fetches the feed and applies unseen events to the
// store. Redelivered events, including self-echo of this client's own
// submissions, are absorbed by the processed-set check.
type Syncer struct {
	feed  *feed.Client
	store store.EventStore
	log   zerolog.Logger
	opts  Options

	lastPrune time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Syncer. Zero-valued options get the design defaults.
func New(fc *feed.Client, st store.EventStore, logger zerolog.Logger, opts Options) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 5 * time.Second
	}
	return &Syncer{
		feed:  fc,
		store: st,
		log:   logger.With().Str("component", "sync").Logger(),
		opts:  opts,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches Run in a goroutine. The started flag is set before the
// spawn so a Stop racing the launch still waits for the loop to drain.
func (s *Syncer) Start(ctx context.Context) {
	s.started.Store(true)
	go s.Run(ctx)
}

// Run polls until Stop is called or the context ends. The stop signal is
// checked at the top of each cycle; an in-flight fetch is allowed to
// complete before the loop exits.
func (s *Syncer) Run(ctx context.Context) {
	s.started.Store(true)
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.runCycle(ctx)

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(s.opts.PollInterval):
		}
	}
}

// Stop signals the loop to exit and waits for the current cycle to finish.
// Safe to call even if Run was never started.
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

// runCycle performs one fetch-apply-commit pass. Transport failures discard
// the cycle silently; the fixed interval is the only retry policy.
func (s *Syncer) runCycle(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	events, err := s.feed.Fetch(fetchCtx)
	cancel()
	if err != nil {
		metrics.PollCycles.WithLabelValues("transport_error").Inc()
		s.log.Debug().Err(err).Msg("fetch failed, skipping cycle")
		return
	}

	metrics.EventsFetched.Add(float64(len(events)))

	if len(events) > 0 {
		if err := s.apply(ctx, events); err != nil {
			metrics.PollCycles.WithLabelValues("store_error").Inc()
			s.log.Error().Err(err).Msg("store rejected fetch cycle")
			return
		}
	}

	metrics.PollCycles.WithLabelValues("ok").Inc()
	s.maybePrune(ctx)
}

func (s *Syncer) apply(ctx context.Context, events []models.Event) error {
	result, err := s.store.ApplyEvents(ctx, events, time.Now())
	if err != nil {
		return err
	}

	metrics.EventsApplied.Add(float64(result.NewMessages))
	metrics.EventsSkipped.WithLabelValues("duplicate").Add(float64(result.Duplicates))
	metrics.EventsSkipped.WithLabelValues("ignored").Add(float64(result.Ignored))

	if result.NewMessages > 0 {
		s.log.Debug().
			Int("new", result.NewMessages).
			Int("duplicates", result.Duplicates).
			Msg("applied fetch cycle")
		if s.opts.OnRefresh != nil {
			s.opts.OnRefresh()
		}
	}
	return nil
}

// maybePrune runs the retention sweep at most once per pruneEvery.
func (s *Syncer) maybePrune(ctx context.Context) {
	if s.opts.ProcessedRetention <= 0 {
		return
	}
	if time.Since(s.lastPrune) < pruneEvery {
		return
	}
	s.lastPrune = time.Now()

	removed, err := s.store.PruneProcessed(ctx, time.Now().Add(-s.opts.ProcessedRetention))
	if err != nil {
		s.log.Warn().Err(err).Msg("retention sweep failed")
		return
	}
	if removed > 0 {
		metrics.ProcessedPruned.Add(float64(removed))
		s.log.Info().Int64("removed", removed).Msg("pruned processed-event markers")
	}
}
