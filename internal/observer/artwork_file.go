package observer

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// ArtworkFileName is the file kept in the output directory
const ArtworkFileName = "current_artwork.jpg"

// ArtworkFileObserver mirrors the current artwork to a file so other tools
// (status bars, notification daemons) can pick it up
type ArtworkFileObserver struct {
	logger *zap.Logger
	path   string

	mu      sync.Mutex
	written []byte
}

// NewArtworkFileObserver creates an observer writing into the configured output directory
func NewArtworkFileObserver(logger *zap.Logger, cfg domain.Config) *ArtworkFileObserver {
	return &ArtworkFileObserver{
		logger: logger,
		path:   filepath.Join(cfg.GetOutputDir(), ArtworkFileName),
	}
}

// Path returns the location of the artwork file
func (o *ArtworkFileObserver) Path() string {
	return o.path
}

// OnSnapshot implements domain.Observer
func (o *ArtworkFileObserver) OnSnapshot(s domain.TrackSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !s.HasArtwork() {
		if o.written != nil {
			if err := o.remove(); err != nil {
				o.logger.Warn("Failed to remove artwork file", zap.String("path", o.path), zap.Error(err))
			}
		}
		return
	}

	if bytes.Equal(o.written, s.ArtworkImage) {
		return
	}

	if err := o.write(s.ArtworkImage); err != nil {
		o.logger.Warn("Failed to write artwork file", zap.String("path", o.path), zap.Error(err))
		return
	}
	o.logger.Debug("Artwork file updated",
		zap.String("path", o.path),
		zap.String("size", humanize.IBytes(uint64(len(s.ArtworkImage)))))
}

// Close removes the artwork file
func (o *ArtworkFileObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.remove()
}

// write replaces the file atomically so readers never see a partial image
func (o *ArtworkFileObserver) write(data []byte) error {
	dir := filepath.Dir(o.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artwork-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), o.path); err != nil {
		return fmt.Errorf("failed to move artwork into place: %w", err)
	}

	o.written = data
	return nil
}

func (o *ArtworkFileObserver) remove() error {
	o.written = nil
	if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
