package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/limitwatch/limitwatch/internal/logging"
	"github.com/limitwatch/limitwatch/internal/rules"
	"github.com/limitwatch/limitwatch/internal/snapshot"
)

func testAlert() Alert {
	return Alert{
		SessionID:     "s-1",
		Signal:        rules.Signal{Triggered: true, Reason: "process enforcerd at 95.0% CPU", Source: snapshot.SourceProcess},
		ExtendMinutes: 15,
	}
}

func TestResponseJSON(t *testing.T) {
	data, err := json.Marshal(Extend(15))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"action":"extend","minutes":15}` {
		t.Errorf("Marshal = %s", data)
	}

	var r Response
	if err := json.Unmarshal([]byte(`{"action":"acknowledge"}`), &r); err != nil {
		t.Fatal(err)
	}
	if r != Acknowledge() {
		t.Errorf("Unmarshal = %+v, want acknowledge", r)
	}
	if err := json.Unmarshal([]byte(`{"action":"snooze"}`), &r); err == nil {
		t.Error("unknown action should fail to unmarshal")
	}
}

func TestAlertText(t *testing.T) {
	a := testAlert()
	if !strings.Contains(a.Text(), "enforcerd") || !strings.HasPrefix(a.Text(), Message) {
		t.Errorf("Text() = %q", a.Text())
	}
	if a.ExtendLabel() != "Extend 15 Minutes" {
		t.Errorf("ExtendLabel() = %q", a.ExtendLabel())
	}
	if (Alert{}).Text() != Message {
		t.Errorf("Text() without reason = %q", (Alert{}).Text())
	}
}

func TestFunc(t *testing.T) {
	var got Alert
	n := Func(func(ctx context.Context, a Alert) (Response, error) {
		got = a
		return Extend(a.ExtendMinutes), nil
	})
	resp, err := n.NotifyLimitReached(context.Background(), testAlert())
	if err != nil || resp != Extend(15) {
		t.Errorf("NotifyLimitReached() = %v, %v", resp, err)
	}
	if got.SessionID != "s-1" {
		t.Errorf("alert not passed through: %+v", got)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewWriter(&buf, logging.LevelInfo))

	resp, err := n.NotifyLimitReached(context.Background(), testAlert())
	if err != nil || resp != Acknowledge() {
		t.Errorf("NotifyLimitReached() = %v, %v", resp, err)
	}
	if !strings.Contains(buf.String(), "enforcerd") || !strings.Contains(buf.String(), `"source":"process"`) {
		t.Errorf("log output = %s", buf.String())
	}
}

func TestTerminalNotifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Response
	}{
		{"ok", "o\n", Acknowledge()},
		{"empty line acknowledges", "\n", Acknowledge()},
		{"extend", "e\n", Extend(15)},
		{"retry on junk", "maybe\nextend\n", Extend(15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			n := NewTerminalNotifier(strings.NewReader(tt.input), &out)
			resp, err := n.NotifyLimitReached(context.Background(), testAlert())
			if err != nil {
				t.Fatalf("NotifyLimitReached() error: %v", err)
			}
			if resp != tt.want {
				t.Errorf("resp = %v, want %v", resp, tt.want)
			}
			if !strings.Contains(out.String(), Title) || !strings.Contains(out.String(), "Extend 15 Minutes") {
				t.Errorf("prompt = %q", out.String())
			}
		})
	}
}

func TestTerminalNotifierEOF(t *testing.T) {
	n := NewTerminalNotifier(strings.NewReader(""), io.Discard)
	if _, err := n.NotifyLimitReached(context.Background(), testAlert()); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want EOF", err)
	}
	if _, err := n.NotifyLimitReached(context.Background(), testAlert()); !errors.Is(err, io.EOF) {
		t.Errorf("second call error = %v, want EOF", err)
	}
}

func TestTerminalNotifierCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	n := NewTerminalNotifier(r, io.Discard)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := n.NotifyLimitReached(ctx, testAlert()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestPromptNotifier(t *testing.T) {
	n := NewPromptNotifier()
	if _, ok := n.Pending(); ok {
		t.Error("Pending() = true before any alert")
	}
	if err := n.Answer(Acknowledge()); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("Answer() error = %v, want ErrNoPrompt", err)
	}

	done := make(chan Response, 1)
	go func() {
		resp, _ := n.NotifyLimitReached(context.Background(), testAlert())
		done <- resp
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if a, ok := n.Pending(); ok {
			if a.SessionID != "s-1" {
				t.Errorf("Pending() = %+v", a)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("prompt never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := n.Answer(Extend(5)); err != nil {
		t.Fatalf("Answer() error: %v", err)
	}
	select {
	case resp := <-done:
		if resp != Extend(5) {
			t.Errorf("resp = %v, want extend 5m", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("NotifyLimitReached did not return after Answer")
	}
	if _, ok := n.Pending(); ok {
		t.Error("Pending() = true after Answer")
	}
}

func TestPromptNotifierCancel(t *testing.T) {
	n := NewPromptNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := n.NotifyLimitReached(ctx, testAlert()); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want canceled", err)
	}
	if _, ok := n.Pending(); ok {
		t.Error("cancelled prompt still pending")
	}
}

func fakeZenity(t *testing.T, stdout string, exitCode int) *ZenityNotifier {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zenity")
	script := "#!/bin/sh\n"
	if stdout != "" {
		script += "echo " + strconv.Quote(stdout) + "\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return &ZenityNotifier{path: path}
}

func TestZenityNotifier(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		exit    int
		want    Response
		wantErr bool
	}{
		{"ok button", "", 0, Acknowledge(), false},
		{"extend button", "Extend 15 Minutes", 1, Extend(15), false},
		{"escape or close", "", 1, Acknowledge(), false},
		{"unknown extra output", "Something Else", 1, Acknowledge(), false},
		{"dialog failure", "", 5, Response{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := fakeZenity(t, tt.stdout, tt.exit)
			resp, err := n.NotifyLimitReached(context.Background(), testAlert())
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if resp != tt.want {
				t.Errorf("resp = %v, want %v", resp, tt.want)
			}
		})
	}
}

func TestZenityArgs(t *testing.T) {
	args := strings.Join(NewZenityNotifier().args(testAlert()), " ")
	for _, want := range []string{"--info", "--ok-label=OK", "--extra-button=Extend 15 Minutes", "--title=" + Title} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
	if strings.Contains(args, "--cancel-label") {
		t.Errorf("args relabel cancel: %s", args)
	}
}

func TestNew(t *testing.T) {
	for _, mode := range []string{"", "log", "terminal", "prompt"} {
		if _, err := New(mode, logging.Discard(), strings.NewReader(""), io.Discard); err != nil {
			t.Errorf("New(%q) error: %v", mode, err)
		}
	}
	if _, err := New("carrier-pigeon", nil, nil, nil); err == nil {
		t.Error("New(unknown) should fail")
	}
}
