// Package bridge talks to the external player process.
// The rest of the daemon only sees the domain.Bridge contract: a command
// goes in, free-form text or a *domain.BridgeError comes out.
package bridge

import (
	"fmt"
	"runtime"

	"github.com/genricoloni/nowplaying/internal/domain"
	"go.uber.org/zap"
)

// Supported backend names
const (
	BackendAuto      = "auto"
	BackendOsascript = "osascript"
	BackendMpris     = "mpris"
)

// New creates the bridge selected by the configuration
func New(cfg domain.Config, logger *zap.Logger) (domain.Bridge, error) {
	backend := cfg.GetBackend()
	if backend == BackendAuto {
		backend = defaultBackend(runtime.GOOS)
	}

	switch backend {
	case BackendOsascript:
		logger.Info("Using AppleScript bridge", zap.String("player", cfg.GetPlayer()))
		return NewOsascriptBridge(logger, ExecRunner{}, cfg.GetPlayer(), cfg.GetVolumeStep()), nil
	case BackendMpris:
		logger.Info("Using MPRIS bridge", zap.String("name", cfg.GetMprisName()))
		return NewMprisBridge(logger, cfg.GetMprisName(), cfg.GetVolumeStep()), nil
	default:
		return nil, fmt.Errorf("unsupported bridge backend %q", backend)
	}
}

func defaultBackend(goos string) string {
	if goos == "darwin" {
		return BackendOsascript
	}
	return BackendMpris
}
