// Package parser turns raw player replies into track snapshots.
// It never fails: malformed input yields the "no track" sentinel.
package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/genricoloni/nowplaying/internal/domain"
)

const (
	// FieldSeparator joins the fields of a track info reply
	FieldSeparator = " | "
	// ArtistSeparator splits the track summary into title and artist
	ArtistSeparator = " by "
	// TimingSeparator joins position and duration in a timing reply
	TimingSeparator = ","
)

// Parse converts a track info reply of the form
// "<title> by <artist> | <artwork locator> | <state>" into a snapshot.
func Parse(raw string) domain.TrackSnapshot {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.Contains(raw, FieldSeparator) {
		return domain.NoTrack()
	}

	fields := strings.Split(raw, FieldSeparator)

	title, artist := splitSummary(fields[0])
	if title == "" {
		// No track loaded: the player state is irrelevant
		return domain.NoTrack()
	}

	snap := domain.TrackSnapshot{
		Title:     title,
		Artist:    artist,
		Transport: domain.StateStopped,
	}
	if len(fields) > 1 {
		snap.ArtworkLocator = strings.TrimSpace(fields[1])
	}
	if len(fields) > 2 {
		snap.Transport = ParseTransport(strings.TrimSpace(fields[2]))
	}

	return snap
}

// ParseTransport maps a player state keyword to a transport state.
// Matching is case-sensitive; unknown keywords map to Stopped.
func ParseTransport(keyword string) domain.TransportState {
	switch keyword {
	case "playing":
		return domain.StatePlaying
	case "paused":
		return domain.StatePaused
	case "stopped":
		return domain.StateStopped
	default:
		return domain.StateStopped
	}
}

// ParseTiming converts a "<position>,<duration>" reply into seconds.
// Non-numeric or missing fields yield 0.
func ParseTiming(raw string) (position, duration float64) {
	parts := strings.SplitN(strings.TrimSpace(raw), TimingSeparator, 2)
	position = parseSeconds(parts[0])
	if len(parts) == 2 {
		duration = parseSeconds(parts[1])
	}
	return position, duration
}

func splitSummary(summary string) (title, artist string) {
	title, artist, found := strings.Cut(summary, ArtistSeparator)
	if !found {
		return strings.TrimSpace(summary), ""
	}
	return strings.TrimSpace(title), strings.TrimSpace(artist)
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
