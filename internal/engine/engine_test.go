package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/genricoloni/nowplaying/internal/bridge"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/domain/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const (
	midnightCity = "Midnight City by M83 | https://img/x.jpg | playing"
	teardrop     = "Teardrop by Massive Attack | https://img/t.jpg | playing"
)

type testConfig struct {
	interval time.Duration
}

func (c testConfig) GetPollInterval() time.Duration {
	if c.interval == 0 {
		return time.Second
	}
	return c.interval
}
func (c testConfig) GetBackend() string   { return "auto" }
func (c testConfig) GetPlayer() string    { return "Spotify" }
func (c testConfig) GetMprisName() string { return "" }
func (c testConfig) GetOutputDir() string { return "/tmp/nowplaying-test" }
func (c testConfig) GetArtworkSize() int  { return 170 }
func (c testConfig) GetVolumeStep() int   { return 10 }

// recorder collects every published snapshot
type recorder struct {
	mu     sync.Mutex
	snaps  []domain.TrackSnapshot
	closed bool
}

func (r *recorder) OnSnapshot(s domain.TrackSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) all() []domain.TrackSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TrackSnapshot(nil), r.snaps...)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newTestEngine(t *testing.T) (*Engine, *mocks.MockBridge, *mocks.MockFetcher, *recorder) {
	t.Helper()
	ctrl := gomock.NewController(t)
	br := mocks.NewMockBridge(ctrl)
	fetch := mocks.NewMockFetcher(ctrl)

	e := NewEngine(zap.NewNop(), testConfig{}, br, fetch, nil)
	rec := &recorder{}
	e.Subscribe(rec)
	return e, br, fetch, rec
}

func expectPoll(br *mocks.MockBridge, info, timing string) {
	br.EXPECT().Query(gomock.Any(), bridge.CmdTrackInfo).Return(info, nil)
	br.EXPECT().Query(gomock.Any(), bridge.CmdPlaybackTime).Return(timing, nil)
}

func waitArtwork(t *testing.T, e *Engine) domain.ArtworkResult {
	t.Helper()
	select {
	case res := <-e.artwork:
		return res
	case <-time.After(time.Second):
		require.FailNow(t, "Timeout: artwork fetch did not complete")
		return domain.ArtworkResult{}
	}
}

func TestEngine_TickPublishesParsedSnapshot(t *testing.T) {
	e, br, fetch, rec := newTestEngine(t)
	ctx := context.Background()

	expectPoll(br, midnightCity, "30,240")
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").Return([]byte("jpeg"), nil)

	e.tick(ctx)

	snap := e.Snapshot()
	assert.Equal(t, "Midnight City", snap.Title)
	assert.Equal(t, "M83", snap.Artist)
	assert.Equal(t, "https://img/x.jpg", snap.ArtworkLocator)
	assert.Equal(t, domain.StatePlaying, snap.Transport)
	assert.Equal(t, 30.0, snap.Position)
	assert.Equal(t, 240.0, snap.Duration)
	assert.False(t, snap.HasArtwork(), "artwork should not be attached before the fetch resolves")

	e.handleArtwork(waitArtwork(t, e))

	snaps := rec.all()
	require.Len(t, snaps, 2, "expected poll publish plus artwork publish")
	assert.Equal(t, "jpeg", string(snaps[1].ArtworkImage))
}

// TestEngine_SameLocatorFetchedOnce covers ticks while the fetch is in
// flight and after it resolved.
func TestEngine_SameLocatorFetchedOnce(t *testing.T) {
	e, br, fetch, _ := newTestEngine(t)
	ctx := context.Background()

	expectPoll(br, midnightCity, "1,240")
	expectPoll(br, midnightCity, "2,240")
	expectPoll(br, midnightCity, "3,240")
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").Return([]byte("jpeg"), nil).Times(1)

	e.tick(ctx) // starts the fetch
	e.tick(ctx) // fetch in flight
	e.handleArtwork(waitArtwork(t, e))
	e.tick(ctx) // locator already resolved

	snap := e.Snapshot()
	assert.Equal(t, 3.0, snap.Position)
	assert.Equal(t, "jpeg", string(snap.ArtworkImage), "resolved artwork should carry into later ticks")
}

// TestEngine_ReturningTrackReusesPendingFetch switches A, B and back to A
// while the first fetch for A is still running.
func TestEngine_ReturningTrackReusesPendingFetch(t *testing.T) {
	e, br, fetch, _ := newTestEngine(t)
	ctx := context.Background()

	release := make(chan struct{})
	var fetchesA atomic.Int32

	expectPoll(br, midnightCity, "10,240")
	expectPoll(br, teardrop, "0,330")
	expectPoll(br, midnightCity, "11,240")
	expectPoll(br, midnightCity, "12,240")
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").
		DoAndReturn(func(ctx context.Context, _ string) ([]byte, error) {
			fetchesA.Add(1)
			<-release
			return []byte("cover-a"), nil
		}).AnyTimes()
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/t.jpg").Return([]byte("cover-b"), nil)

	e.tick(ctx) // A: fetch starts and blocks
	e.tick(ctx) // B
	e.tick(ctx) // back to A while its first fetch is outstanding

	// B completes first and is stale: the current track is A again
	resB := waitArtwork(t, e)
	require.Equal(t, "https://img/t.jpg", resB.Locator)
	e.handleArtwork(resB)
	assert.False(t, e.Snapshot().HasArtwork())
	assert.Contains(t, e.inFlight, "https://img/x.jpg", "A must stay outstanding after B completes")

	close(release)
	e.handleArtwork(waitArtwork(t, e))
	assert.Empty(t, e.inFlight)
	assert.Equal(t, "cover-a", string(e.Snapshot().ArtworkImage))

	e.tick(ctx) // resolved, no new fetch
	e.fetches.Wait()
	assert.Equal(t, int32(1), fetchesA.Load(), "expected a single fetch for locator A")
}

func TestEngine_StaleArtworkDiscarded(t *testing.T) {
	e, br, fetch, rec := newTestEngine(t)
	ctx := context.Background()

	expectPoll(br, midnightCity, "10,240")
	expectPoll(br, teardrop, "0,330")
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").Return([]byte("old"), nil)
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/t.jpg").Return([]byte("new"), nil)

	e.tick(ctx)
	e.tick(ctx)

	results := map[string]domain.ArtworkResult{}
	for i := 0; i < 2; i++ {
		res := waitArtwork(t, e)
		results[res.Locator] = res
	}

	published := len(rec.all())
	e.handleArtwork(results["https://img/x.jpg"])

	assert.Len(t, rec.all(), published, "stale artwork must not publish")
	snap := e.Snapshot()
	assert.False(t, snap.HasArtwork(), "stale artwork leaked into snapshot")
	assert.Equal(t, "Teardrop", snap.Title)

	e.handleArtwork(results["https://img/t.jpg"])
	assert.Equal(t, "new", string(e.Snapshot().ArtworkImage))
}

func TestEngine_OldImageRetainedUntilNewResolves(t *testing.T) {
	e, br, fetch, _ := newTestEngine(t)
	ctx := context.Background()

	expectPoll(br, midnightCity, "10,240")
	expectPoll(br, teardrop, "0,330")
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").Return([]byte("old"), nil)
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/t.jpg").Return([]byte("new"), nil)

	e.tick(ctx)
	e.handleArtwork(waitArtwork(t, e))

	e.tick(ctx)
	assert.Equal(t, "old", string(e.Snapshot().ArtworkImage), "previous artwork shows until the new fetch resolves")

	e.handleArtwork(waitArtwork(t, e))
	assert.Equal(t, "new", string(e.Snapshot().ArtworkImage))
}

func TestEngine_BridgeFailurePublishesNoTrack(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*mocks.MockBridge)
	}{
		{
			name: "Player Unavailable",
			setupMock: func(br *mocks.MockBridge) {
				br.EXPECT().Query(gomock.Any(), bridge.CmdTrackInfo).
					Return("", domain.NewBridgeError(domain.ErrBridgeUnavailable, bridge.CmdTrackInfo, nil))
			},
		},
		{
			name: "Permission Denied",
			setupMock: func(br *mocks.MockBridge) {
				br.EXPECT().Query(gomock.Any(), bridge.CmdTrackInfo).
					Return("", domain.NewBridgeError(domain.ErrPermissionDenied, bridge.CmdTrackInfo, nil))
			},
		},
		{
			name: "Timing Query Fails",
			setupMock: func(br *mocks.MockBridge) {
				br.EXPECT().Query(gomock.Any(), bridge.CmdTrackInfo).Return(midnightCity, nil)
				br.EXPECT().Query(gomock.Any(), bridge.CmdPlaybackTime).
					Return("", domain.NewBridgeError(domain.ErrExecutionFailed, bridge.CmdPlaybackTime, nil))
			},
		},
		{
			name: "Malformed Reply",
			setupMock: func(br *mocks.MockBridge) {
				br.EXPECT().Query(gomock.Any(), bridge.CmdTrackInfo).Return(" |  | paused", nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No fetcher expectations: any fetch fails the test
			e, br, _, rec := newTestEngine(t)
			tt.setupMock(br)

			e.tick(context.Background())

			snaps := rec.all()
			require.Len(t, snaps, 1)
			assert.True(t, snaps[0].Equal(domain.NoTrack()), "expected the no track sentinel, got %+v", snaps[0])
		})
	}
}

func TestEngine_FailedFetchRetriesOnNextTick(t *testing.T) {
	e, br, fetch, _ := newTestEngine(t)
	ctx := context.Background()

	expectPoll(br, midnightCity, "1,240")
	expectPoll(br, midnightCity, "2,240")
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").Return(nil, fmt.Errorf("network error")).Times(2)

	e.tick(ctx)
	res := waitArtwork(t, e)
	require.Nil(t, res.Image, "failed fetch should resolve to no artwork")
	e.handleArtwork(res)

	e.tick(ctx)
	waitArtwork(t, e)
}

func TestEngine_DuplicateSnapshotsNotRepublished(t *testing.T) {
	e, br, _, rec := newTestEngine(t)
	ctx := context.Background()

	const noArt = "Field Recording |  | paused"
	expectPoll(br, noArt, "5,100")
	expectPoll(br, noArt, "5,100")
	expectPoll(br, noArt, "6,100")

	e.tick(ctx)
	e.tick(ctx)
	e.tick(ctx)

	assert.Len(t, rec.all(), 2)
}

func TestEngine_PositionClamped(t *testing.T) {
	e, br, _, _ := newTestEngine(t)

	expectPoll(br, "Song by Band |  | playing", "300,240")
	e.tick(context.Background())

	assert.Equal(t, 240.0, e.Snapshot().Position)
}

func TestEngine_Commands(t *testing.T) {
	e, br, _, _ := newTestEngine(t)
	ctx := context.Background()

	br.EXPECT().Query(gomock.Any(), bridge.CmdPrevious).Return("", nil)
	br.EXPECT().Query(gomock.Any(), bridge.CmdPlayPause).Return("", nil)
	br.EXPECT().Query(gomock.Any(), bridge.CmdNext).Return("", nil)
	br.EXPECT().Query(gomock.Any(), bridge.CmdVolumeUp).Return("", nil)
	br.EXPECT().Query(gomock.Any(), bridge.CmdVolumeDown).
		Return("", domain.NewBridgeError(domain.ErrExecutionFailed, bridge.CmdVolumeDown, nil))
	br.EXPECT().Query(gomock.Any(), bridge.SeekCommand(42)).Return("", nil)

	assert.NoError(t, e.Previous(ctx))
	assert.NoError(t, e.PlayPause(ctx))
	assert.NoError(t, e.Next(ctx))
	assert.NoError(t, e.VolumeUp(ctx))
	assert.ErrorIs(t, e.VolumeDown(ctx), domain.ErrExecutionFailed)
	assert.NoError(t, e.Seek(ctx, 42))
}

func TestEngine_SeekClampedToDuration(t *testing.T) {
	e, br, _, _ := newTestEngine(t)
	ctx := context.Background()

	expectPoll(br, "Song by Band |  | playing", "10,200")
	br.EXPECT().Query(gomock.Any(), bridge.SeekCommand(200)).Return("", nil)
	br.EXPECT().Query(gomock.Any(), bridge.SeekCommand(0)).Return("", nil)

	e.tick(ctx)
	assert.NoError(t, e.Seek(ctx, 999))
	assert.NoError(t, e.Seek(ctx, -5))
}

func TestEngine_TransportState(t *testing.T) {
	e, br, _, _ := newTestEngine(t)
	ctx := context.Background()

	br.EXPECT().Query(gomock.Any(), bridge.CmdPlayerState).Return("paused\n", nil)
	br.EXPECT().Query(gomock.Any(), bridge.CmdPlayerState).
		Return("", domain.NewBridgeError(domain.ErrBridgeUnavailable, bridge.CmdPlayerState, nil))

	state, err := e.TransportState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatePaused, state)

	state, err = e.TransportState(ctx)
	assert.ErrorIs(t, err, domain.ErrBridgeUnavailable)
	assert.Equal(t, domain.StateStopped, state)
}

func TestEngine_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	br := mocks.NewMockBridge(ctrl)
	fetch := mocks.NewMockFetcher(ctrl)

	br.EXPECT().Query(gomock.Any(), bridge.CmdProbe).
		Return("", domain.NewBridgeError(domain.ErrPermissionDenied, bridge.CmdProbe, nil))
	br.EXPECT().Query(gomock.Any(), bridge.CmdTrackInfo).Return(midnightCity, nil).AnyTimes()
	br.EXPECT().Query(gomock.Any(), bridge.CmdPlaybackTime).Return("30,240", nil).AnyTimes()
	fetch.EXPECT().Fetch(gomock.Any(), "https://img/x.jpg").Return([]byte("jpeg"), nil).Times(1)

	e := NewEngine(zap.NewNop(), testConfig{interval: 10 * time.Millisecond}, br, fetch, nil)
	rec := &recorder{}
	e.Subscribe(rec)

	require.NoError(t, e.Start(context.Background()))

	require.Eventually(t, func() bool {
		return e.Snapshot().HasArtwork()
	}, 2*time.Second, 5*time.Millisecond, "artwork never published")

	require.NoError(t, e.Stop(context.Background()))
	assert.True(t, rec.isClosed(), "observers implementing io.Closer should be closed on Stop")
}

func TestEngine_RefreshDoesNotFetch(t *testing.T) {
	e, br, _, rec := newTestEngine(t)

	expectPoll(br, midnightCity, "30,240")
	snap := e.Refresh(context.Background())

	assert.Equal(t, 240.0, snap.Duration)
	assert.Equal(t, 240.0, e.Snapshot().Duration)
	assert.Len(t, rec.all(), 1)
}
