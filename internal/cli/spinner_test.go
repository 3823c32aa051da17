package cli

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestSpinnerNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(context.Background(), &buf, "Resolving...")
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if buf.Len() != 0 {
		t.Errorf("spinner drew %q on a non-terminal writer", buf.String())
	}
	if s.Cancelled() {
		t.Error("Cancelled() = true after Stop")
	}
}

func TestSpinnerContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, &bytes.Buffer{}, "Resolving...")
	s.Start()
	cancel()

	if !s.Cancelled() {
		t.Error("Cancelled() = false after context cancellation")
	}
	s.Stop()
	if !s.Cancelled() {
		t.Error("Cancelled() = false after Stop on a cancelled context")
	}
}

func TestSpinnerStopIsIdempotent(t *testing.T) {
	s := newSpinner(context.Background(), &bytes.Buffer{}, "Installing...")
	s.Start()
	s.Stop()
	s.Stop()
	s.Stop()
}
