package tick

// Recorder receives tick outcomes for metrics.
type Recorder interface {
	TickCompleted(res *Result)
	TickAborted(state State, err error)
	Fallback(state State)
	Contradictions(n int)
}

type nopRecorder struct{}

func (nopRecorder) TickCompleted(*Result) {}
func (nopRecorder) TickAborted(State, error) {}
func (nopRecorder) Fallback(State) {}
func (nopRecorder) Contradictions(int) {}
