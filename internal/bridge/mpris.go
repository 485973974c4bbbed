package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/genricoloni/nowplaying/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisObjectPath = "/org/mpris/MediaPlayer2"
	mprisPlayer     = "org.mpris.MediaPlayer2.Player"
)

// MprisBridge drives a player through the D-Bus MPRIS interface.
// Replies are rendered to the same text grammar the AppleScript bridge uses.
type MprisBridge struct {
	logger     *zap.Logger
	name       string // well-known name; empty selects the first MPRIS player on the bus
	volumeStep int
	dial       func() (DBusClient, error)

	mu   sync.Mutex
	conn DBusClient
}

// NewMprisBridge creates a bridge that connects to the session bus on first use
func NewMprisBridge(logger *zap.Logger, name string, volumeStep int) *MprisBridge {
	return &MprisBridge{
		logger:     logger,
		name:       name,
		volumeStep: volumeStep,
		dial: func() (DBusClient, error) {
			return NewStdDBusClient()
		},
	}
}

// Close closes the D-Bus connection if one was opened
func (b *MprisBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}

// Query answers cmd by reading or calling the player's MPRIS interface
func (b *MprisBridge) Query(ctx context.Context, cmd domain.Command) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewBridgeError(domain.ErrExecutionFailed, cmd, err)
	}

	conn, err := b.client()
	if err != nil {
		return "", domain.NewBridgeError(domain.ErrBridgeUnavailable, cmd, err)
	}

	player, err := b.resolvePlayer(conn)
	if err != nil {
		return "", domain.NewBridgeError(domain.ErrBridgeUnavailable, cmd, err)
	}

	out, err := b.dispatch(conn, player, cmd)
	if err != nil {
		b.logger.Debug("MPRIS command failed",
			zap.String("player", player),
			zap.String("command", string(cmd)),
			zap.Error(err))
		var bridgeErr *domain.BridgeError
		if errors.As(err, &bridgeErr) {
			return "", err
		}
		return "", domain.NewBridgeError(domain.ErrExecutionFailed, cmd, err)
	}
	return out, nil
}

func (b *MprisBridge) client() (DBusClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return b.conn, nil
	}
	conn, err := b.dial()
	if err != nil {
		return nil, fmt.Errorf("session bus connection failed: %w", err)
	}
	b.conn = conn
	return conn, nil
}

// resolvePlayer returns the bus name to talk to, checking that it is owned
func (b *MprisBridge) resolvePlayer(conn DBusClient) (string, error) {
	if b.name != "" {
		if _, err := conn.GetNameOwner(b.name); err != nil {
			return "", fmt.Errorf("%s is not running: %w", b.name, err)
		}
		return b.name, nil
	}

	names, err := conn.ListNames()
	if err != nil {
		return "", fmt.Errorf("failed to list bus names: %w", err)
	}
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			return name, nil
		}
	}
	return "", fmt.Errorf("no MPRIS player on the session bus")
}

func (b *MprisBridge) dispatch(conn DBusClient, player string, cmd domain.Command) (string, error) {
	switch cmd {
	case CmdProbe:
		return "ok", nil
	case CmdTrackInfo:
		return b.trackInfo(conn, player)
	case CmdPlaybackTime:
		return b.playbackTime(conn, player)
	case CmdPlayerState:
		status, err := b.status(conn, player)
		if err != nil {
			return "", err
		}
		return strings.ToLower(status), nil
	case CmdPrevious:
		return "", conn.Call(player, mprisObjectPath, mprisPlayer+".Previous")
	case CmdNext:
		return "", conn.Call(player, mprisObjectPath, mprisPlayer+".Next")
	case CmdPlayPause:
		return "", conn.Call(player, mprisObjectPath, mprisPlayer+".PlayPause")
	case CmdVolumeUp:
		return "", b.stepVolume(conn, player, b.volumeStep)
	case CmdVolumeDown:
		return "", b.stepVolume(conn, player, -b.volumeStep)
	}

	if seconds, ok := parseSeek(cmd); ok {
		return "", b.seek(conn, player, seconds)
	}
	return "", unknownCommand(cmd)
}

func (b *MprisBridge) metadata(conn DBusClient, player string) (map[string]dbus.Variant, error) {
	variant, err := conn.GetProperty(player, mprisObjectPath, mprisPlayer+".Metadata")
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	// Some players return nil or unexpected types if not playing anything
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		return nil, nil
	}
	return metadata, nil
}

func (b *MprisBridge) status(conn DBusClient, player string) (string, error) {
	variant, err := conn.GetProperty(player, mprisObjectPath, mprisPlayer+".PlaybackStatus")
	if err != nil {
		return "", fmt.Errorf("failed to get playback status: %w", err)
	}
	status, ok := variant.Value().(string)
	if !ok {
		return "", fmt.Errorf("invalid playback status format")
	}
	return status, nil
}

// trackInfo renders "<title> by <artist> | <art url> | <state>"
func (b *MprisBridge) trackInfo(conn DBusClient, player string) (string, error) {
	metadata, err := b.metadata(conn, player)
	if err != nil {
		return "", err
	}
	status, err := b.status(conn, player)
	if err != nil {
		return "", err
	}

	title := stringField(metadata, "xesam:title")
	artist := ""
	if artistVar, ok := metadata["xesam:artist"]; ok {
		switch artists := artistVar.Value().(type) {
		case []string:
			if len(artists) > 0 {
				artist = artists[0]
			}
		case string:
			artist = artists
		default:
			// Some non-compliant players may use unexpected types
			b.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", artistVar.Value())))
		}
	}

	summary := title
	if artist != "" {
		summary = title + " by " + artist
	}

	return summary + " | " + stringField(metadata, "mpris:artUrl") + " | " + strings.ToLower(status), nil
}

// playbackTime renders "<position>,<duration>" in seconds
func (b *MprisBridge) playbackTime(conn DBusClient, player string) (string, error) {
	metadata, err := b.metadata(conn, player)
	if err != nil {
		return "", err
	}

	var position int64
	if variant, err := conn.GetProperty(player, mprisObjectPath, mprisPlayer+".Position"); err == nil {
		position, _ = microseconds(variant.Value())
	}

	var length int64
	if v, ok := metadata["mpris:length"]; ok {
		length, _ = microseconds(v.Value())
	}

	return formatSeconds(position) + "," + formatSeconds(length), nil
}

func (b *MprisBridge) seek(conn DBusClient, player string, seconds float64) error {
	metadata, err := b.metadata(conn, player)
	if err != nil {
		return err
	}

	trackID, ok := metadata["mpris:trackid"].Value().(dbus.ObjectPath)
	if !ok {
		if s, isString := metadata["mpris:trackid"].Value().(string); isString {
			trackID, ok = dbus.ObjectPath(s), true
		}
	}
	if !ok || !trackID.IsValid() {
		return fmt.Errorf("player did not report a track id")
	}

	return conn.Call(player, mprisObjectPath, mprisPlayer+".SetPosition", trackID, int64(seconds*1e6))
}

func (b *MprisBridge) stepVolume(conn DBusClient, player string, step int) error {
	variant, err := conn.GetProperty(player, mprisObjectPath, mprisPlayer+".Volume")
	if err != nil {
		return fmt.Errorf("failed to get volume: %w", err)
	}
	current, ok := variant.Value().(float64)
	if !ok {
		return fmt.Errorf("invalid volume format")
	}

	next := current + float64(step)/100
	if next < 0 {
		next = 0
	}
	if next > 1 {
		next = 1
	}
	return conn.SetProperty(player, mprisObjectPath, mprisPlayer+".Volume", next)
}

func stringField(metadata map[string]dbus.Variant, key string) string {
	if v, ok := metadata[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

// microseconds normalizes the integer types players use for MPRIS times
func microseconds(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

func formatSeconds(us int64) string {
	if us < 0 {
		us = 0
	}
	return strconv.FormatFloat(float64(us)/1e6, 'f', -1, 64)
}
