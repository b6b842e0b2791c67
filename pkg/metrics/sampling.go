package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards about rate of the events it sees to inner.
// Events whose "action" tag is ERROR are always forwarded.
type SamplingObserver struct {
	inner Observer
	every uint64
	n     atomic.Uint64
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	var every uint64
	if rate > 0 {
		every = uint64(math.Max(1, math.Round(1.0/rate)))
	}
	return &SamplingObserver{inner: OrNoop(inner), every: every}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if ev.Tags["action"] == "ERROR" {
		s.inner.RecordEvent(ev)
		return
	}
	switch s.every {
	case 0:
		return
	case 1:
		s.inner.RecordEvent(ev)
		return
	}
	if s.n.Add(1)%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}
