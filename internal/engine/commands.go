package engine

import (
	"context"
	"strings"

	"github.com/genricoloni/nowplaying/internal/bridge"
	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/genricoloni/nowplaying/internal/parser"
	"go.uber.org/zap"
)

// User commands are forwarded straight to the bridge. None of them waits
// for the player to change state: the next tick publishes the result.

// Previous skips to the previous track
func (e *Engine) Previous(ctx context.Context) error {
	return e.send(ctx, bridge.CmdPrevious)
}

// PlayPause toggles playback
func (e *Engine) PlayPause(ctx context.Context) error {
	return e.send(ctx, bridge.CmdPlayPause)
}

// Next skips to the next track
func (e *Engine) Next(ctx context.Context) error {
	return e.send(ctx, bridge.CmdNext)
}

// Seek moves the playhead to seconds, clamped to the known track length
func (e *Engine) Seek(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	if d := e.Snapshot().Duration; d > 0 && seconds > d {
		seconds = d
	}
	return e.send(ctx, bridge.SeekCommand(seconds))
}

// VolumeUp raises the volume by the configured step
func (e *Engine) VolumeUp(ctx context.Context) error {
	return e.send(ctx, bridge.CmdVolumeUp)
}

// VolumeDown lowers the volume by the configured step
func (e *Engine) VolumeDown(ctx context.Context) error {
	return e.send(ctx, bridge.CmdVolumeDown)
}

// TransportState asks the player for its playback mode only.
// Failures report Stopped together with the bridge error.
func (e *Engine) TransportState(ctx context.Context) (domain.TransportState, error) {
	res := e.query(ctx, bridge.CmdPlayerState)
	if !res.OK() {
		return domain.StateStopped, res.Err
	}
	return parser.ParseTransport(strings.TrimSpace(res.Raw)), nil
}

func (e *Engine) send(ctx context.Context, cmd domain.Command) error {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := e.bridge.Query(qctx, cmd); err != nil {
		e.logger.Warn("Player command failed", zap.String("command", string(cmd)), zap.Error(err))
		return err
	}
	e.logger.Debug("Player command sent", zap.String("command", string(cmd)))
	return nil
}
