package notify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// TerminalNotifier prints the alert and reads the answer from a line
// oriented reader, typically the controlling terminal.
type TerminalNotifier struct {
	out io.Writer

	mu      sync.Mutex
	lines   chan string
	readErr error // set before lines is closed
	in      *bufio.Scanner
	once    sync.Once
}

func NewTerminalNotifier(in io.Reader, out io.Writer) *TerminalNotifier {
	return &TerminalNotifier{
		out:   out,
		in:    bufio.NewScanner(in),
		lines: make(chan string),
	}
}

// read pumps input lines from a single goroutine so an abandoned prompt
// does not leave a second reader competing for the next answer.
func (n *TerminalNotifier) read() {
	for n.in.Scan() {
		n.lines <- n.in.Text()
	}
	err := n.in.Err()
	if err == nil {
		err = io.EOF
	}
	n.readErr = err
	close(n.lines)
}

func (n *TerminalNotifier) NotifyLimitReached(ctx context.Context, alert Alert) (Response, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.once.Do(func() { go n.read() })

	fmt.Fprintf(n.out, "\n*** %s ***\n%s\n\n", Title, alert.Text())
	for {
		fmt.Fprintf(n.out, "[o] OK   [e] %s > ", alert.ExtendLabel())

		select {
		case <-ctx.Done():
			fmt.Fprintln(n.out)
			return Response{}, ctx.Err()
		case line, ok := <-n.lines:
			if !ok {
				return Response{}, fmt.Errorf("reading answer: %w", n.readErr)
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "o", "ok":
				return Acknowledge(), nil
			case "e", "extend":
				return Extend(alert.ExtendMinutes), nil
			}
			fmt.Fprintln(n.out, "please answer o or e")
		}
	}
}
