package engine

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/genricoloni/nowplaying/internal/bridge"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/parser"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// queryTimeout bounds a single bridge call made from the poll loop
	queryTimeout = 5 * time.Second
	// fetchTimeout bounds one artwork fetch including processing
	fetchTimeout = 15 * time.Second
)

// Engine keeps the published TrackSnapshot in sync with the player.
// A single loop goroutine owns the poll cycle and every publish; artwork
// fetches run on their own goroutines and report back to the loop.
type Engine struct {
	logger    *zap.Logger
	cfg       domain.Config
	bridge    domain.Bridge
	fetcher   domain.Fetcher
	processor domain.ImageProcessor

	mu        sync.RWMutex
	current   domain.TrackSnapshot
	published bool
	observers []domain.Observer

	// Owned by the loop goroutine
	inFlight map[string]struct{} // locators with an outstanding fetch
	resolved string              // locator the retained image belongs to
	image    []byte              // best-known artwork, kept until a new fetch resolves

	artwork chan domain.ArtworkResult
	cancel  context.CancelFunc
	done    chan struct{}
	fetches sync.WaitGroup
}

// NewEngine creates a new synchronization engine
func NewEngine(
	logger *zap.Logger,
	cfg domain.Config,
	br domain.Bridge,
	fetch domain.Fetcher,
	proc domain.ImageProcessor,
) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		bridge:    br,
		fetcher:   fetch,
		processor: proc,
		current:   domain.NoTrack(),
		inFlight:  make(map[string]struct{}),
		artwork:   make(chan domain.ArtworkResult, 4),
	}
}

// Subscribe registers an observer for every subsequent snapshot
func (e *Engine) Subscribe(o domain.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Snapshot returns the most recently published snapshot
func (e *Engine) Snapshot() domain.TrackSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Start checks that the player can be automated and launches the poll loop.
// It returns immediately (non-blocking).
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Engine starting...", zap.Duration("interval", e.cfg.GetPollInterval()))

	if err := e.CheckAccess(ctx); err != nil {
		e.logger.Warn("Player is not reachable, showing no track until it is",
			zap.Error(err),
			zap.String("suggestion", domain.Suggestion(err)))
	}

	// The loop outlives the start context
	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go e.runLoop(loopCtx)
	return nil
}

// Stop ends the poll loop, waits for pending artwork fetches and closes
// observers that hold resources
func (e *Engine) Stop(ctx context.Context) error {
	e.logger.Info("Engine stopping...")

	if e.cancel == nil {
		return nil
	}
	e.cancel()

	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.fetches.Wait()

	var err error
	e.mu.RLock()
	observers := append([]domain.Observer(nil), e.observers...)
	e.mu.RUnlock()
	for _, o := range observers {
		if c, ok := o.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}

	e.logger.Info("Engine stopped")
	return err
}

// CheckAccess runs the startup probe against the player
func (e *Engine) CheckAccess(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := e.bridge.Query(qctx, bridge.CmdProbe)
	return err
}

// runLoop polls on every tick and merges artwork completions
func (e *Engine) runLoop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.cfg.GetPollInterval())
	defer ticker.Stop()

	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine loop stopped")
			return

		case <-ticker.C:
			e.tick(ctx)

		case res := <-e.artwork:
			e.handleArtwork(res)
		}
	}
}

// tick performs one synchronous poll and publishes the result
func (e *Engine) tick(ctx context.Context) {
	snap := e.Poll(ctx)

	if snap.IsNoTrack() {
		e.publish(snap)
		return
	}

	locator := snap.ArtworkLocator
	switch {
	case locator == "":
		// Track without artwork
	case locator == e.resolved:
		snap.ArtworkImage = e.image
	default:
		snap.ArtworkImage = e.image
		if _, pending := e.inFlight[locator]; !pending {
			e.startFetch(ctx, locator)
		}
	}

	e.publish(snap)
}

// Refresh polls once and publishes the result without fetching artwork.
// It must not be called while the loop is running.
func (e *Engine) Refresh(ctx context.Context) domain.TrackSnapshot {
	snap := e.Poll(ctx)
	e.publish(snap)
	return snap
}

// Poll queries the player once and builds a snapshot without artwork.
// Any bridge failure degrades to the "no track" snapshot.
func (e *Engine) Poll(ctx context.Context) domain.TrackSnapshot {
	info := e.query(ctx, bridge.CmdTrackInfo)
	if !info.OK() {
		e.logger.Debug("Track query failed", zap.Error(info.Err))
		return domain.NoTrack()
	}

	snap := parser.Parse(info.Raw)
	if snap.IsNoTrack() {
		return snap
	}

	timing := e.query(ctx, bridge.CmdPlaybackTime)
	if !timing.OK() {
		e.logger.Debug("Timing query failed", zap.Error(timing.Err))
		return domain.NoTrack()
	}

	snap.Position, snap.Duration = parser.ParseTiming(timing.Raw)
	return snap.Clamped()
}

func (e *Engine) query(ctx context.Context, cmd domain.Command) domain.PollResult {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	raw, err := e.bridge.Query(qctx, cmd)
	return domain.PollResult{Raw: raw, Err: err}
}

func (e *Engine) startFetch(ctx context.Context, locator string) {
	e.inFlight[locator] = struct{}{}
	e.fetches.Add(1)

	e.logger.Debug("Fetching artwork", zap.String("locator", locator))
	go e.fetchArtwork(ctx, locator)
}

// fetchArtwork runs off the loop goroutine and always reports a result
func (e *Engine) fetchArtwork(ctx context.Context, locator string) {
	defer e.fetches.Done()

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	img, err := e.fetcher.Fetch(fctx, locator)
	if err == nil && e.processor != nil {
		img, err = e.processor.Process(fctx, img)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.Warn("Failed to fetch artwork", zap.String("locator", locator), zap.Error(err))
		}
		img = nil
	}

	select {
	case e.artwork <- domain.ArtworkResult{Locator: locator, Image: img}:
	case <-ctx.Done():
	}
}

// handleArtwork merges a fetch completion into the current snapshot.
// Results for a locator that is no longer current are discarded.
func (e *Engine) handleArtwork(res domain.ArtworkResult) {
	delete(e.inFlight, res.Locator)

	current := e.Snapshot()
	if res.Locator != current.ArtworkLocator {
		e.logger.Debug("Discarding stale artwork",
			zap.String("locator", res.Locator),
			zap.String("current", current.ArtworkLocator))
		return
	}

	if res.Image == nil {
		// Next tick with the same locator fetches again
		e.resolved = ""
		e.image = nil
	} else {
		e.resolved = res.Locator
		e.image = res.Image
	}

	current.ArtworkImage = e.image
	e.publish(current)
}

// publish replaces the current snapshot and notifies observers synchronously.
// Identical consecutive snapshots are not re-published.
func (e *Engine) publish(snap domain.TrackSnapshot) {
	e.mu.Lock()
	if e.published && e.current.Equal(snap) {
		e.mu.Unlock()
		return
	}
	changedTrack := !e.published || e.current.Title != snap.Title || e.current.Artist != snap.Artist
	e.current = snap
	e.published = true
	observers := append([]domain.Observer(nil), e.observers...)
	e.mu.Unlock()

	if changedTrack {
		e.logger.Info("Now playing",
			zap.String("title", snap.Title),
			zap.String("artist", snap.Artist),
			zap.String("state", string(snap.Transport)))
	}

	for _, o := range observers {
		o.OnSnapshot(snap)
	}
}
