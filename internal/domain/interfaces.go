package domain

import (
	"context"
	"time"
)

// Command is an opaque instruction understood by the player automation surface
type Command string

// Bridge sends commands to the external player process.
// Implementations should handle osascript or D-Bus/MPRIS communication.
//
//go:generate mockgen -destination=mocks/bridge_mock.go -package=mocks github.com/genricoloni/nowplaying/internal/domain Bridge,Fetcher
type Bridge interface {
	// Query sends cmd to the player and returns its free-form text reply.
	// Failures are always reported as a *BridgeError.
	Query(ctx context.Context, cmd Command) (string, error)
}

// Fetcher defines the interface for retrieving album artwork
type Fetcher interface {
	// Fetch downloads or reads image data from a URL or local path
	// Returns the raw image bytes or an error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ImageProcessor defines the interface for in-memory image processing
// This is OS-agnostic and works purely with byte streams
type ImageProcessor interface {
	// Process decodes and normalizes artwork data
	// Returns the processed image bytes or an error
	Process(ctx context.Context, imageData []byte) ([]byte, error)
}

// Observer receives every published snapshot.
// Implementations must treat the snapshot as read-only and re-render fully.
type Observer interface {
	OnSnapshot(s TrackSnapshot)
}

// ObserverFunc adapts a plain function to the Observer interface
type ObserverFunc func(s TrackSnapshot)

// OnSnapshot calls f(s)
func (f ObserverFunc) OnSnapshot(s TrackSnapshot) { f(s) }

// Config defines the interface for application configuration
type Config interface {
	// GetPollInterval returns the delay between two ticks
	GetPollInterval() time.Duration

	// GetBackend returns the bridge backend name ("auto", "osascript", "mpris")
	GetBackend() string

	// GetPlayer returns the scripting name of the player application
	GetPlayer() string

	// GetMprisName returns the well-known D-Bus name of the player
	GetMprisName() string

	// GetOutputDir returns the directory where the current artwork is written
	GetOutputDir() string

	// GetArtworkSize returns the edge length in pixels of processed artwork
	GetArtworkSize() int

	// GetVolumeStep returns the system volume change per command
	GetVolumeStep() int
}
