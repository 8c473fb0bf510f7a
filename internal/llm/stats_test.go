package llm

import "testing"

func TestStats_EmptySnapshot(t *testing.T) {
	s := NewStats(8)
	if snap := s.Snapshot(); snap.Count != 0 || snap.MaxMs != 0 {
		t.Errorf("empty snapshot: %+v", snap)
	}
}

func TestStats_Percentiles(t *testing.T) {
	s := NewStats(200)
	for i := int64(1); i <= 100; i++ {
		s.Record(i)
	}

	snap := s.Snapshot()
	if snap.Count != 100 || snap.MinMs != 1 || snap.MaxMs != 100 {
		t.Fatalf("snapshot: %+v", snap)
	}
	if snap.AvgMs != 50 {
		t.Errorf("avg: %d", snap.AvgMs)
	}
	if snap.P50Ms != 50 || snap.P95Ms != 95 || snap.P99Ms != 99 {
		t.Errorf("percentiles: %+v", snap)
	}
}

func TestStats_WindowEvictsOldest(t *testing.T) {
	s := NewStats(4)
	for _, v := range []int64{10, 20, 30, 40, 50} {
		s.Record(v)
	}

	snap := s.Snapshot()
	if snap.Count != 4 {
		t.Fatalf("count: %d", snap.Count)
	}
	if snap.MinMs != 20 || snap.MaxMs != 50 {
		t.Errorf("oldest sample should be evicted: %+v", snap)
	}
}

func TestStats_NegativeClampedToZero(t *testing.T) {
	s := NewStats(4)
	s.Record(-5)
	if snap := s.Snapshot(); snap.MinMs != 0 {
		t.Errorf("snapshot: %+v", snap)
	}
}
