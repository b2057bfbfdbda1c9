package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe("send_to_reply", 1500)
	w.Observe("send_to_reply", 2500)
	w.Observe("send_to_reply", 3500)
	w.ObserveIndicator("backend_retry")
	w.ObserveIndicator("backend_retry")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "send_to_reply" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "send_to_reply")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 3500 {
		t.Fatalf("LastMS = %.2f, want 3500", s.LastMS)
	}
	if s.P50MS != 2500 {
		t.Fatalf("P50MS = %.2f, want 2500", s.P50MS)
	}
	if s.P95MS <= 2500 || s.P95MS > 3500 {
		t.Fatalf("P95MS = %.2f, want (2500,3500]", s.P95MS)
	}
	if s.TargetP95MS != 4000 {
		t.Fatalf("TargetP95MS = %.2f, want 4000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want 2", snap.Indicators[0].Count)
	}
}

func TestLatencyWindowRingOverwrite(t *testing.T) {
	w := newLatencyWindow(2)
	w.Observe("turn_total", 100)
	w.Observe("turn_total", 200)
	w.Observe("turn_total", 300)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want window capacity", s.Samples)
	}
	if s.LastMS != 300 {
		t.Fatalf("LastMS = %.2f, want 300", s.LastMS)
	}
}

func TestLatencyWindowReset(t *testing.T) {
	w := newLatencyWindow(4)
	w.Observe("stop_to_send", 50)
	w.Reset()

	if snap := w.Snapshot(); len(snap.Stages) != 0 || len(snap.Indicators) != 0 {
		t.Fatalf("snapshot after reset = %+v, want empty", snap)
	}
}
