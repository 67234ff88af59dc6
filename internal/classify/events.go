package classify

// Event is published while a batch runs.
type Event interface {
	isEvent()
}

// Classified is published once an answer has been stored. Parsed is false
// when the answer could not be read as a verdict.
type Classified struct {
	JobID   int64
	Company string
	Summary string
	Fit     bool
	Parsed  bool
}

// ItemFailed is published when the request for a listing fails. The listing
// stays unclassified.
type ItemFailed struct {
	JobID int64
	Err   error
}

// BatchStarted is published after the prompts of a batch are rendered.
type BatchStarted struct {
	RunID string
	Size  int
}

func (Classified) isEvent()   {}
func (ItemFailed) isEvent()   {}
func (BatchStarted) isEvent() {}

// Observer receives batch events. Calls are serialized.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) {
	f(e)
}
