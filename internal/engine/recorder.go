package engine

// Recorder receives run measurements. The metrics package implements it.
type Recorder interface {
	ChunkProcessed(bytes int)
	RecordsFolded(n int)
	Progress(percent float64)
	CheckpointSaved(kind string)
	CheckpointFailed(kind string)
	StateChanged(state string)
}

// Checkpoint kinds reported to Recorder.
const (
	SaveAuto      = "auto"
	SaveMilestone = "milestone"
	SaveForced    = "forced"
)

type nopRecorder struct{}

func (nopRecorder) ChunkProcessed(int)      {}
func (nopRecorder) RecordsFolded(int)       {}
func (nopRecorder) Progress(float64)        {}
func (nopRecorder) CheckpointSaved(string)  {}
func (nopRecorder) CheckpointFailed(string) {}
func (nopRecorder) StateChanged(string)     {}
