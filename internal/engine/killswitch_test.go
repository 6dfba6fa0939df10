package engine

import (
	"testing"
	"time"
)

func TestCheckStop(t *testing.T) {
	sb := newTestSandbox(t)

	if err := checkStop(sb); err != nil {
		t.Fatalf("no sentinel: %v", err)
	}

	mustWriteFile(t, sb.StopPath(), nil)
	if err := checkStop(sb); !isErr(err, ErrHalted) {
		t.Fatalf("expected ErrHalted with sentinel present, got %v", err)
	}
	// Content is irrelevant, presence is the signal.
	mustWriteFile(t, sb.StopPath(), []byte("any content"))
	if !stopPresent(sb) {
		t.Fatal("expected sentinel detected regardless of content")
	}
}

func TestWatchStop_DetectsSentinelCreation(t *testing.T) {
	sb := newTestSandbox(t)

	sw, err := watchStop(sb, testLog())
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer sw.Close()

	if sw.Halted() {
		t.Fatal("watcher must start unhalted")
	}

	mustWriteFile(t, sb.StopPath(), nil)

	deadline := time.After(5 * time.Second)
	for !sw.Halted() {
		select {
		case <-deadline:
			t.Fatal("watcher did not observe STOP creation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWatchStop_IgnoresOtherFiles(t *testing.T) {
	sb := newTestSandbox(t)

	sw, err := watchStop(sb, testLog())
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer sw.Close()

	mustWriteFile(t, sb.JournalPath(), []byte("{}\n"))
	time.Sleep(100 * time.Millisecond)
	if sw.Halted() {
		t.Fatal("watcher must only react to the STOP sentinel")
	}
}
