package bridge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/genricoloni/nowplaying/internal/domain"
)

// Commands understood by every bridge backend
const (
	// CmdTrackInfo replies "<title> by <artist> | <artwork locator> | <state>"
	CmdTrackInfo domain.Command = "track-info"
	// CmdPlaybackTime replies "<position>,<duration>" in seconds
	CmdPlaybackTime domain.Command = "playback-time"
	// CmdPlayerState replies the bare state keyword
	CmdPlayerState domain.Command = "player-state"
	CmdPrevious    domain.Command = "previous"
	CmdNext        domain.Command = "next"
	CmdPlayPause   domain.Command = "play-pause"
	CmdVolumeUp    domain.Command = "volume-up"
	CmdVolumeDown  domain.Command = "volume-down"
	// CmdProbe checks that the player can be automated at all
	CmdProbe domain.Command = "probe"

	seekPrefix = "seek:"
)

// SeekCommand builds the command that moves the playhead to seconds
func SeekCommand(seconds float64) domain.Command {
	if seconds < 0 {
		seconds = 0
	}
	return domain.Command(seekPrefix + strconv.FormatFloat(seconds, 'f', -1, 64))
}

// parseSeek extracts the target position from a seek command
func parseSeek(cmd domain.Command) (float64, bool) {
	rest, ok := strings.CutPrefix(string(cmd), seekPrefix)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func unknownCommand(cmd domain.Command) error {
	return domain.NewBridgeError(domain.ErrExecutionFailed, cmd, fmt.Errorf("unknown command"))
}
