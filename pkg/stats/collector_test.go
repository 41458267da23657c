package stats

import (
	"sync"
	"testing"
)

func TestTrackOperation(t *testing.T) {
	collector := NewCollector()

	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpSearch)

	snap := collector.GetStats()
	if snap["ops.put"] != uint64(2) {
		t.Errorf("ops.put = %v, want 2", snap["ops.put"])
	}
	if snap["ops.search"] != uint64(1) {
		t.Errorf("ops.search = %v, want 1", snap["ops.search"])
	}
	if _, ok := snap["last.put"]; !ok {
		t.Errorf("missing last.put")
	}
	if _, ok := snap["lat.put.avg_ns"]; ok {
		t.Errorf("latency keys present without any samples")
	}
}

func TestTrackLatency(t *testing.T) {
	collector := NewCollector()

	collector.TrackOperationWithLatency(OpMutate, 100)
	collector.TrackOperationWithLatency(OpMutate, 300)
	collector.TrackOperationWithLatency(OpMutate, 200)

	snap := collector.GetStats()
	if snap["ops.mutate"] != uint64(3) {
		t.Errorf("ops.mutate = %v, want 3", snap["ops.mutate"])
	}
	if snap["lat.mutate.avg_ns"] != uint64(200) {
		t.Errorf("avg = %v, want 200", snap["lat.mutate.avg_ns"])
	}
	if snap["lat.mutate.min_ns"] != uint64(100) {
		t.Errorf("min = %v, want 100", snap["lat.mutate.min_ns"])
	}
	if snap["lat.mutate.max_ns"] != uint64(300) {
		t.Errorf("max = %v, want 300", snap["lat.mutate.max_ns"])
	}
}

func TestTrackErrorsAndBytes(t *testing.T) {
	collector := NewCollector()

	collector.TrackError("block_get")
	collector.TrackError("block_get")
	collector.TrackBytes(true, 100)
	collector.TrackBytes(false, 40)

	snap := collector.GetStats()
	if snap["errs.block_get"] != uint64(2) {
		t.Errorf("errs.block_get = %v, want 2", snap["errs.block_get"])
	}
	if snap["bytes.written"] != uint64(100) {
		t.Errorf("bytes.written = %v, want 100", snap["bytes.written"])
	}
	if snap["bytes.read"] != uint64(40) {
		t.Errorf("bytes.read = %v, want 40", snap["bytes.read"])
	}
}

func TestGetStatsFiltered(t *testing.T) {
	collector := NewCollector()
	collector.TrackOperation(OpBlockGet)
	collector.TrackError("block_get")

	filtered := collector.GetStatsFiltered("errs.")
	if _, ok := filtered["errs.block_get"]; !ok {
		t.Errorf("filtered snapshot missing errs.block_get")
	}
	if _, ok := filtered["ops.block_get"]; ok {
		t.Errorf("filtered snapshot leaked ops.block_get")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	collector := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				collector.TrackOperation(OpScan)
				collector.TrackOperationWithLatency(OpDiff, uint64(j+1))
				collector.TrackBytes(j%2 == 0, 1)
			}
		}()
	}
	wg.Wait()

	snap := collector.GetStats()
	if snap["ops.scan"] != uint64(8000) {
		t.Errorf("ops.scan = %v, want 8000", snap["ops.scan"])
	}
	if snap["ops.diff"] != uint64(8000) {
		t.Errorf("ops.diff = %v, want 8000", snap["ops.diff"])
	}
	if snap["lat.diff.min_ns"] != uint64(1) {
		t.Errorf("lat.diff.min_ns = %v, want 1", snap["lat.diff.min_ns"])
	}
	if snap["lat.diff.max_ns"] != uint64(1000) {
		t.Errorf("lat.diff.max_ns = %v, want 1000", snap["lat.diff.max_ns"])
	}
}
