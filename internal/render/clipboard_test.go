package render

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func stubClipboard(t *testing.T, system, osc func(string) error) {
	t.Helper()
	origWriteAll := clipboardWriteAll
	origWriteOSC52 := clipboardWriteOSC52
	t.Cleanup(func() {
		clipboardWriteAll = origWriteAll
		clipboardWriteOSC52 = origWriteOSC52
	})
	clipboardWriteAll = system
	clipboardWriteOSC52 = osc
}

func TestCopyUsesSystemClipboard(t *testing.T) {
	fallbackCalled := false
	stubClipboard(t, func(string) error { return nil }, func(string) error {
		fallbackCalled = true
		return nil
	})
	method, err := Copy("hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if method != ClipboardSystem || fallbackCalled {
		t.Fatalf("expected system clipboard only, got %v fallback=%v", method, fallbackCalled)
	}
}

func TestCopyFallsBackToOSC52(t *testing.T) {
	var copied string
	stubClipboard(t, func(string) error { return errors.New("exit status 1") }, func(text string) error {
		copied = text
		return nil
	})
	method, err := Copy("hello")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if method != ClipboardOSC52 || copied != "hello" {
		t.Fatalf("expected OSC52 copy of hello, got %v %q", method, copied)
	}
}

func TestCopyExplainsMissingDisplay(t *testing.T) {
	t.Setenv("DISPLAY", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	stubClipboard(t,
		func(string) error { return errors.New("exit status 1") },
		func(string) error { return errors.New("open /dev/tty: no such device") },
	)
	_, err := Copy("hello")
	if err == nil {
		t.Fatalf("expected copy error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "no GUI clipboard available") || !strings.Contains(msg, "OSC52 fallback failed") {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestCopyReportsBothFailures(t *testing.T) {
	t.Setenv("DISPLAY", ":0")
	stubClipboard(t,
		func(string) error { return errors.New("exit status 1") },
		func(string) error { return errors.New("tty gone") },
	)
	_, err := Copy("hello")
	if err == nil {
		t.Fatalf("expected copy error")
	}
	want := "system clipboard failed: clipboard helper exited with status 1; OSC52 fallback failed: tty gone"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
}

func TestWriteOSC52ClipboardReportsTTYError(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("UNICHAT_DISABLE_OSC52", "")
	orig := openTTYForWrite
	t.Cleanup(func() { openTTYForWrite = orig })
	openTTYForWrite = func() (io.WriteCloser, error) { return nil, os.ErrNotExist }

	err := writeOSC52Clipboard("hello")
	if err == nil || !strings.Contains(err.Error(), "open /dev/tty") {
		t.Fatalf("expected /dev/tty error, got %v", err)
	}
}

func TestOSC52CanBeDisabled(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("UNICHAT_DISABLE_OSC52", "yes")
	if err := writeOSC52Clipboard("hello"); err == nil {
		t.Fatalf("expected disabled OSC52 to fail")
	}
	t.Setenv("UNICHAT_DISABLE_OSC52", "")
	t.Setenv("TERM", "dumb")
	if shouldAttemptOSC52() {
		t.Fatalf("dumb terminals must not get OSC52")
	}
}

func TestWriteOSC52SequenceWrapsForMultiplexers(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TERM", "xterm")
	var plain bytes.Buffer
	if err := writeOSC52Sequence(&plain, "hi"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(plain.String(), "\x1b]52;") {
		t.Fatalf("expected plain OSC52, got %q", plain.String())
	}

	t.Setenv("TMUX", "/tmp/tmux-1000/default,1,0")
	var tmux bytes.Buffer
	if err := writeOSC52Sequence(&tmux, "hi"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(tmux.String(), plain.String()) || !strings.Contains(tmux.String(), "\x1bPtmux;") {
		t.Fatalf("expected plain and tmux-wrapped sequences, got %q", tmux.String())
	}

	t.Setenv("TMUX", "")
	t.Setenv("TERM", "screen-256color")
	var screen bytes.Buffer
	if err := writeOSC52Sequence(&screen, "hi"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasPrefix(screen.String(), "\x1bP") {
		t.Fatalf("expected screen DCS wrapping, got %q", screen.String())
	}
}
