package extcmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"stemdesk/core/apperr"
)

func TestRunCapturesStdout(t *testing.T) {
	r := NewRunner("sh", 5*time.Second)
	out, err := r.Run(context.Background(), "-c", []string{"echo scanning"}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(out) != "scanning" {
		t.Errorf("stdout = %q", out)
	}
}

func TestRunParsesProgressMarkers(t *testing.T) {
	r := NewRunner("sh", 5*time.Second)
	var seen []int
	_, err := r.Run(context.Background(), "-c",
		[]string{`printf 'working 10%%\ndone 50%%\nfinished 100%%\n'`},
		Options{OnProgress: func(pct int) { seen = append(seen, pct) }})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []int{10, 50, 100}
	if len(seen) != len(want) {
		t.Fatalf("progress updates = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("progress updates = %v, want %v", seen, want)
		}
	}
}

func TestRunFailurePreservesStderrVerbatim(t *testing.T) {
	r := NewRunner("sh", 5*time.Second)
	_, err := r.Run(context.Background(), "-c",
		[]string{`echo 'cannot open input: stems_raw/pad.ogg' >&2; exit 2`}, Options{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if apperr.KindOf(err) != apperr.KindCollaborator {
		t.Errorf("kind = %v, want collaborator", apperr.KindOf(err))
	}
	if got := apperr.DetailOf(err); got != "cannot open input: stems_raw/pad.ogg" {
		t.Errorf("detail = %q", got)
	}
}

func TestRunFailureFallsBackToStdout(t *testing.T) {
	r := NewRunner("sh", 5*time.Second)
	_, err := r.Run(context.Background(), "-c",
		[]string{`echo 'diagnostic on stdout'; exit 1`}, Options{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := apperr.DetailOf(err); got != "diagnostic on stdout" {
		t.Errorf("detail = %q", got)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	r := NewRunner("sh", 100*time.Millisecond)
	start := time.Now()
	_, err := r.Run(context.Background(), "-c", []string{"sleep 10"}, Options{})
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process not killed on timeout; took %v", elapsed)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout message", err)
	}
}

func TestRunPerCallTimeoutOverride(t *testing.T) {
	r := NewRunner("sh", 50*time.Millisecond)
	_, err := r.Run(context.Background(), "-c", []string{"sleep 0.2; echo ok"},
		Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("override timeout not honored: %v", err)
	}
}
