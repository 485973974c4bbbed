package observer

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// StatusLineObserver writes a one-line label for each snapshot, the way a
// menu bar item would show it
type StatusLineObserver struct {
	logger *zap.Logger

	mu sync.Mutex
	w  io.Writer
}

// NewStatusLineObserver creates an observer writing to w
func NewStatusLineObserver(logger *zap.Logger, w io.Writer) *StatusLineObserver {
	return &StatusLineObserver{logger: logger, w: w}
}

// OnSnapshot implements domain.Observer
func (o *StatusLineObserver) OnSnapshot(s domain.TrackSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := fmt.Fprintln(o.w, FormatLine(s)); err != nil {
		o.logger.Debug("Failed to write status line", zap.Error(err))
	}
}

// FormatLine renders s as "<symbol> Title — Artist  mm:ss / mm:ss".
// The no track snapshot renders as its title only.
func FormatLine(s domain.TrackSnapshot) string {
	if s.IsNoTrack() {
		return s.Title
	}

	var b strings.Builder
	b.WriteString(transportSymbol(s.Transport))
	b.WriteByte(' ')
	b.WriteString(s.Title)
	if s.Artist != "" {
		b.WriteString(" — ")
		b.WriteString(s.Artist)
	}
	b.WriteString("  ")
	b.WriteString(FormatTime(s.Position))
	b.WriteString(" / ")
	b.WriteString(FormatTime(s.Duration))
	return b.String()
}

// FormatTime renders seconds as zero-padded mm:ss. Minutes are not
// wrapped into hours.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func transportSymbol(t domain.TransportState) string {
	switch t {
	case domain.StatePlaying:
		return "▶"
	case domain.StatePaused:
		return "⏸"
	default:
		return "■"
	}
}
