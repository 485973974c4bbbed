package domain

import "bytes"

// NoSongTitle is shown whenever the player reports no usable track
const NoSongTitle = "No Song Playing"

// TransportState represents the coarse playback mode of the player
type TransportState string

const (
	// StatePlaying indicates the media is currently playing
	StatePlaying TransportState = "Playing"
	// StatePaused indicates the media is paused
	StatePaused TransportState = "Paused"
	// StateStopped indicates the media is stopped or the state is unknown
	StateStopped TransportState = "Stopped"
)

// TrackSnapshot is the playback state published at one poll tick.
// Values are replaced wholesale, never mutated after publication.
type TrackSnapshot struct {
	// Title of the current track, NoSongTitle when absent
	Title string
	// Artist name, empty when absent
	Artist string
	// ArtworkLocator identifies the remote artwork; used only for equality and fetching
	ArtworkLocator string
	// ArtworkImage holds the resolved artwork bytes, nil until the fetch resolves
	ArtworkImage []byte
	// Transport is the player's playback mode
	Transport TransportState
	// Position is the current playback position in seconds
	Position float64
	// Duration is the total track length in seconds, 0 when unknown
	Duration float64
}

// NoTrack returns the sentinel snapshot used for empty, malformed or failed polls
func NoTrack() TrackSnapshot {
	return TrackSnapshot{
		Title:     NoSongTitle,
		Transport: StateStopped,
	}
}

// IsNoTrack reports whether s carries no track information
func (s TrackSnapshot) IsNoTrack() bool {
	return s.Title == NoSongTitle && s.Artist == "" && s.ArtworkLocator == ""
}

// HasArtwork reports whether the artwork image has been resolved
func (s TrackSnapshot) HasArtwork() bool {
	return len(s.ArtworkImage) > 0
}

// Clamped returns a copy with Position kept within [0, Duration]
func (s TrackSnapshot) Clamped() TrackSnapshot {
	if s.Position < 0 {
		s.Position = 0
	}
	if s.Duration < 0 {
		s.Duration = 0
	}
	if s.Duration > 0 && s.Position > s.Duration {
		s.Position = s.Duration
	}
	return s
}

// Percent returns the playback progress in the range [0, 100].
// A zero duration reports 0.
func (s TrackSnapshot) Percent() float64 {
	if s.Duration <= 0 {
		return 0
	}
	p := s.Position / s.Duration * 100
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Equal reports whether two snapshots would render identically
func (s TrackSnapshot) Equal(o TrackSnapshot) bool {
	return s.Title == o.Title &&
		s.Artist == o.Artist &&
		s.ArtworkLocator == o.ArtworkLocator &&
		s.Transport == o.Transport &&
		s.Position == o.Position &&
		s.Duration == o.Duration &&
		bytes.Equal(s.ArtworkImage, o.ArtworkImage)
}

// PollResult is the raw outcome of a single bridge query.
// It is consumed by the parser immediately and then discarded.
type PollResult struct {
	Raw string
	Err error
}

// OK reports whether the query succeeded
func (r PollResult) OK() bool {
	return r.Err == nil
}

// ArtworkResult is delivered when an artwork fetch completes.
// Image is nil when the fetch failed.
type ArtworkResult struct {
	Locator string
	Image   []byte
}
