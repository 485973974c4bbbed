package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// ScriptRunner executes an AppleScript source and returns its output.
// This abstraction allows us to mock osascript in tests.
//
//go:generate mockgen -destination=mocks/script_runner_mock.go -package=mocks github.com/genricoloni/nowplaying/internal/bridge ScriptRunner
type ScriptRunner interface {
	Run(ctx context.Context, script string) (string, error)
}

// ExecRunner runs scripts through the osascript binary
type ExecRunner struct {
	Binary string
}

// Run executes script with "osascript -e"
func (r ExecRunner) Run(ctx context.Context, script string) (string, error) {
	binary := r.Binary
	if binary == "" {
		binary = "osascript"
	}

	cmd := exec.CommandContext(ctx, binary, "-e", script)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w (output: %s)", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}

	return strings.TrimRight(string(output), "\r\n"), nil
}

// AppleScript error numbers reported on stderr
const (
	errNotAuthorized = "-1743"
	errNotRunning    = "-600"
)

// OsascriptBridge drives a scriptable macOS player through AppleScript
type OsascriptBridge struct {
	logger     *zap.Logger
	runner     ScriptRunner
	player     string
	volumeStep int
}

// NewOsascriptBridge creates a bridge for the given player application name
func NewOsascriptBridge(logger *zap.Logger, runner ScriptRunner, player string, volumeStep int) *OsascriptBridge {
	return &OsascriptBridge{
		logger:     logger,
		runner:     runner,
		player:     player,
		volumeStep: volumeStep,
	}
}

// Query renders cmd to AppleScript and runs it
func (b *OsascriptBridge) Query(ctx context.Context, cmd domain.Command) (string, error) {
	script, err := b.script(cmd)
	if err != nil {
		return "", err
	}

	out, err := b.runner.Run(ctx, script)
	if err != nil {
		b.logger.Debug("AppleScript failed", zap.String("command", string(cmd)), zap.Error(err))
		return "", classifyScriptError(cmd, err)
	}

	return out, nil
}

func (b *OsascriptBridge) script(cmd domain.Command) (string, error) {
	p := strconv.Quote(b.player)

	switch cmd {
	case CmdTrackInfo:
		return fmt.Sprintf(`if application %[1]s is running then
	tell application %[1]s
		if current track is not missing value then
			set trackName to name of current track
			set artistName to artist of current track
			set artworkUrl to artwork url of current track
			set playerState to player state as string
			return trackName & " by " & artistName & " | " & artworkUrl & " | " & playerState
		end if
	end tell
end if
return " |  | paused"`, p), nil
	case CmdPlaybackTime:
		return fmt.Sprintf(`if application %[1]s is running then
	tell application %[1]s
		set currentPosition to player position
		set trackDuration to (duration of current track / 1000)
		return (currentPosition as string) & "," & (trackDuration as string)
	end tell
end if
return "0,0"`, p), nil
	case CmdPlayerState:
		return fmt.Sprintf(`if application %[1]s is running then
	tell application %[1]s
		return player state as string
	end tell
end if
return "stopped"`, p), nil
	case CmdPrevious:
		return fmt.Sprintf(`tell application %s to previous track`, p), nil
	case CmdNext:
		return fmt.Sprintf(`tell application %s to next track`, p), nil
	case CmdPlayPause:
		return fmt.Sprintf(`tell application %s
	if player state is playing then
		pause
	else
		play
	end if
end tell`, p), nil
	case CmdVolumeUp:
		return fmt.Sprintf(`set volume output volume ((get volume settings)'s output volume + %d)`, b.volumeStep), nil
	case CmdVolumeDown:
		return fmt.Sprintf(`set volume output volume ((get volume settings)'s output volume - %d)`, b.volumeStep), nil
	case CmdProbe:
		return fmt.Sprintf(`tell application %s
	return "ok"
end tell`, p), nil
	}

	if seconds, ok := parseSeek(cmd); ok {
		return fmt.Sprintf(`if application %[1]s is running then
	tell application %[1]s
		set player position to %[2]s
	end tell
end if`, p, strconv.FormatFloat(seconds, 'f', -1, 64)), nil
	}

	return "", unknownCommand(cmd)
}

// classifyScriptError maps osascript failures onto the bridge error kinds
func classifyScriptError(cmd domain.Command, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return domain.NewBridgeError(domain.ErrBridgeUnavailable, cmd, err)
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, errNotAuthorized), strings.Contains(msg, "Not authorized"):
		return domain.NewBridgeError(domain.ErrPermissionDenied, cmd, err)
	case strings.Contains(msg, errNotRunning), strings.Contains(msg, "isn’t running"), strings.Contains(msg, "isn't running"):
		return domain.NewBridgeError(domain.ErrBridgeUnavailable, cmd, err)
	default:
		return domain.NewBridgeError(domain.ErrExecutionFailed, cmd, err)
	}
}
