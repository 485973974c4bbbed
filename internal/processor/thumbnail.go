package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG format support

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

const jpegQuality = 90

// ThumbnailProcessor decodes album art and fits it into a square frame
type ThumbnailProcessor struct {
	logger *zap.Logger
	size   int
}

// NewThumbnailProcessor creates a processor sized from the application configuration
func NewThumbnailProcessor(logger *zap.Logger, cfg domain.Config) *ThumbnailProcessor {
	return &ThumbnailProcessor{
		logger: logger,
		size:   cfg.GetArtworkSize(),
	}
}

// Process decodes imageData, scales it down to fit the artwork frame
// (keeping the aspect ratio) and re-encodes it as JPEG.
// Undecodable data is reported as an error.
func (p *ThumbnailProcessor) Process(ctx context.Context, imageData []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Validate image dimensions to prevent division by zero
	bounds := img.Bounds()
	if bounds.Dy() == 0 || bounds.Dx() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	thumb := imaging.Fit(img, p.size, p.size, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	p.logger.Debug("Artwork processed",
		zap.String("format", format),
		zap.Int("srcWidth", bounds.Dx()),
		zap.Int("srcHeight", bounds.Dy()),
		zap.String("size", humanize.IBytes(uint64(buf.Len()))))
	return buf.Bytes(), nil
}
