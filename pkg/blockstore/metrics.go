package blockstore

import (
	"context"

	"github.com/ProllyDB/prolly/pkg/cid"
	"github.com/ProllyDB/prolly/pkg/stats"
	"github.com/ProllyDB/prolly/pkg/telemetry"
)

// InstrumentedStore wraps another store and records per-operation
// counters and byte totals.
type InstrumentedStore struct {
	inner     Store
	tel       telemetry.Telemetry
	collector *stats.Collector
}

// NewInstrumentedStore wraps inner. Either tel or collector may be
// nil to record through only one sink.
func NewInstrumentedStore(inner Store, tel telemetry.Telemetry, collector *stats.Collector) *InstrumentedStore {
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	return &InstrumentedStore{inner: inner, tel: tel, collector: collector}
}

// Get fetches a block and records the fetch.
func (s *InstrumentedStore) Get(ctx context.Context, c cid.CID) ([]byte, error) {
	data, err := s.inner.Get(ctx, c)
	if err != nil {
		if s.collector != nil {
			s.collector.TrackError("block_get")
		}
		return nil, err
	}
	s.tel.RecordCounter(ctx, telemetry.MetricBlockGets, 1)
	s.tel.RecordCounter(ctx, telemetry.MetricBlockGetBytes, int64(len(data)))
	if s.collector != nil {
		s.collector.TrackOperation(stats.OpBlockGet)
		s.collector.TrackBytes(false, uint64(len(data)))
	}
	return data, nil
}

// Put stores a block and records the write.
func (s *InstrumentedStore) Put(ctx context.Context, c cid.CID, data []byte) error {
	if err := s.inner.Put(ctx, c, data); err != nil {
		if s.collector != nil {
			s.collector.TrackError("block_put")
		}
		return err
	}
	s.tel.RecordCounter(ctx, telemetry.MetricBlockPuts, 1)
	s.tel.RecordCounter(ctx, telemetry.MetricBlockPutBytes, int64(len(data)))
	if s.collector != nil {
		s.collector.TrackOperation(stats.OpBlockPut)
		s.collector.TrackBytes(true, uint64(len(data)))
	}
	return nil
}
