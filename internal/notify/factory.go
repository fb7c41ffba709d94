package notify

import (
	"fmt"
	"io"
	"log/slog"
)

// New returns the notifier for a configured mode
func New(mode string, logger *slog.Logger, in io.Reader, out io.Writer) (Notifier, error) {
	switch mode {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "terminal":
		return NewTerminalNotifier(in, out), nil
	case "zenity":
		z := NewZenityNotifier()
		if !z.IsAvailable() {
			return nil, fmt.Errorf("zenity not found in PATH")
		}
		return z, nil
	case "prompt":
		return NewPromptNotifier(), nil
	default:
		return nil, fmt.Errorf("unknown notify mode: %s", mode)
	}
}
