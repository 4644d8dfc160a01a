package metrics

import "time"

// Recorder collects engine and resolver observations. Implementations must
// be safe for concurrent use.
type Recorder interface {
	ObserveRangeQuery(variant string, d time.Duration)
	AddMergedSlots(variant string, n int)
	IncExtendFault(direction string)
	IncResolve(origin string)
	ObserveResolve(d time.Duration)
	IncCacheRequest(hit bool)
}

// NoopRecorder is the default Recorder when metrics are not configured.
type NoopRecorder struct{}

func (NoopRecorder) ObserveRangeQuery(string, time.Duration) {}
func (NoopRecorder) AddMergedSlots(string, int)              {}
func (NoopRecorder) IncExtendFault(string)                   {}
func (NoopRecorder) IncResolve(string)                       {}
func (NoopRecorder) ObserveResolve(time.Duration)            {}
func (NoopRecorder) IncCacheRequest(bool)                    {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
