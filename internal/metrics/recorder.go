// Package metrics provides observability hooks for style builds.
package metrics

import "time"

// StageResult enumerates per-asset stage outcomes for counters.
type StageResult string

const (
	StageSuccess   StageResult = "success"
	StageRecovered StageResult = "recovered"
	StageFatal     StageResult = "fatal"
)

// BuildOutcome is the final status of a pipeline run.
type BuildOutcome string

const (
	BuildSuccess  BuildOutcome = "success"
	BuildWarning  BuildOutcome = "warning" // finished with reported compile errors
	BuildFailed   BuildOutcome = "failed"
	BuildCanceled BuildOutcome = "canceled"
)

// Recorder defines observability hooks for builds, stages and live reload.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result StageResult)
	ObserveBuildDuration(preprocessor string, d time.Duration)
	IncBuildOutcome(preprocessor string, outcome BuildOutcome)
	IncReload()
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not served).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncStageResult(string, StageResult)         {}
func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(string, BuildOutcome)       {}
func (NoopRecorder) IncReload()                                 {}
func (NoopRecorder) SetLiveReloadClients(int)                   {}
