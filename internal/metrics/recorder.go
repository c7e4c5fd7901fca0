package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultCanceled ResultLabel = "canceled"
)

// ResultFor maps an error to a ResultLabel.
func ResultFor(err error) ResultLabel {
	if err != nil {
		return ResultFailed
	}
	return ResultSuccess
}

// Recorder defines observability hooks for state operations, locks and events.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveOperationDuration(operation string, d time.Duration)
	IncOperationResult(operation string, result ResultLabel)
	ObserveLockWait(mode string, d time.Duration)
	IncEventDispatched(event string)
	IncEventForwarded(success bool)
	IncIntegrityCheck(result ResultLabel)
	SetConfigurations(kind string, n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperationDuration(string, time.Duration) {}
func (NoopRecorder) IncOperationResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveLockWait(string, time.Duration)          {}
func (NoopRecorder) IncEventDispatched(string)                      {}
func (NoopRecorder) IncEventForwarded(bool)                         {}
func (NoopRecorder) IncIntegrityCheck(ResultLabel)                  {}
func (NoopRecorder) SetConfigurations(string, int)                  {}

// OrNoop returns r, or NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
