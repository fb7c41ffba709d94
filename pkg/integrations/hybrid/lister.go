package hybrid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/limitwatch/limitwatch/pkg/window"
)

// Lister chains several window listers and returns the result of the first
// one that succeeds, e.g. a native Wayland lister backed by XWayland.
type Lister struct {
	listers []window.Lister
	logger  *slog.Logger

	mu                   sync.Mutex
	lastSuccessfulMethod string
}

// NewLister keeps the available listers, in priority order
func NewLister(logger *slog.Logger, listers ...window.Lister) (*Lister, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Lister{logger: logger}
	for _, lister := range listers {
		if lister != nil && lister.IsAvailable() {
			l.listers = append(l.listers, lister)
		}
	}

	if len(l.listers) == 0 {
		return nil, fmt.Errorf("no window lister available")
	}
	return l, nil
}

func (l *Lister) ListWindows(ctx context.Context) ([]window.WindowInfo, error) {
	var errs []string

	for _, lister := range l.listers {
		windows, err := lister.ListWindows(ctx)
		if err == nil {
			l.mu.Lock()
			l.lastSuccessfulMethod = lister.GetDisplayServer()
			l.mu.Unlock()
			return windows, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", lister.GetDisplayServer(), err))
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all window listers failed: %s", strings.Join(errs, "; "))
}

func (l *Lister) IsAvailable() bool {
	return len(l.listers) > 0
}

// GetDisplayServer reports the lister that last succeeded, or the preferred one
func (l *Lister) GetDisplayServer() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSuccessfulMethod != "" {
		return l.lastSuccessfulMethod
	}
	return l.listers[0].GetDisplayServer()
}

func (l *Lister) Close() error {
	for _, lister := range l.listers {
		if err := lister.Close(); err != nil {
			l.logger.Warn("error closing window lister", "display_server", lister.GetDisplayServer(), "err", err)
		}
	}
	return nil
}
