// Package observer holds the headless consumers of published snapshots.
package observer

import (
	"github.com/dustin/go-humanize"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// LogObserver logs every published snapshot at debug level
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver creates a new logging observer
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger.Named("snapshot")}
}

// OnSnapshot implements domain.Observer
func (o *LogObserver) OnSnapshot(s domain.TrackSnapshot) {
	if s.IsNoTrack() {
		o.logger.Debug("No track")
		return
	}

	fields := []zap.Field{
		zap.String("title", s.Title),
		zap.String("artist", s.Artist),
		zap.String("state", string(s.Transport)),
		zap.String("position", FormatTime(s.Position)),
		zap.String("duration", FormatTime(s.Duration)),
		zap.Float64("percent", s.Percent()),
	}
	if s.HasArtwork() {
		fields = append(fields, zap.String("artwork", humanize.IBytes(uint64(len(s.ArtworkImage)))))
	}
	o.logger.Debug("Snapshot", fields...)
}
