package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ZenityNotifier shows a modal dialog through zenity. OK acknowledges and an
// extra button extends. Closing the dialog counts as an acknowledgement.
type ZenityNotifier struct {
	path string
}

func NewZenityNotifier() *ZenityNotifier {
	return &ZenityNotifier{path: "zenity"}
}

// IsAvailable reports whether the zenity binary is on PATH
func (n *ZenityNotifier) IsAvailable() bool {
	_, err := exec.LookPath(n.path)
	return err == nil
}

func (n *ZenityNotifier) args(alert Alert) []string {
	return []string{
		"--info",
		"--title=" + Title,
		"--text=" + alert.Text(),
		"--ok-label=OK",
		"--extra-button=" + alert.ExtendLabel(),
		"--no-wrap",
	}
}

func (n *ZenityNotifier) NotifyLimitReached(ctx context.Context, alert Alert) (Response, error) {
	cmd := exec.CommandContext(ctx, n.path, n.args(alert)...)
	cmd.WaitDelay = 500 * time.Millisecond

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}
	if err == nil {
		return Acknowledge(), nil
	}

	// Exit status 1 is shared by the extra button, which prints its label,
	// and by Escape or the window close button, which print nothing
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		if strings.TrimSpace(string(out)) == alert.ExtendLabel() {
			return Extend(alert.ExtendMinutes), nil
		}
		return Acknowledge(), nil
	}
	return Response{}, fmt.Errorf("zenity dialog failed: %w", err)
}
