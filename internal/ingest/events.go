package ingest

// Event is published to an Observer while a run progresses.
type Event interface {
	isEvent()
}

// ItemIngested is published after every successful upsert.
type ItemIngested struct {
	Source     string
	ExternalID string
	Inserted   bool
	NewCount   int
	Preview    string
}

// PageAdvanced is published when the source moves to its next page.
type PageAdvanced struct {
	Source   string
	Page     string
	NewCount int
}

// ItemSkipped is published for a malformed item.
type ItemSkipped struct {
	Source string
	Err    error
}

// Failed is published when a run stops on a source or storage error.
type Failed struct {
	Source string
	Reason string
	Err    error
}

// Completed is published exactly once at the end of every run.
type Completed struct {
	Source      string
	Total       int
	Seen        int
	Interrupted bool
}

func (ItemIngested) isEvent() {}
func (PageAdvanced) isEvent() {}
func (ItemSkipped) isEvent()  {}
func (Failed) isEvent()       {}
func (Completed) isEvent()    {}

// Observer receives run events. It is called synchronously from the run
// goroutine and must not block for long.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) {
	f(e)
}
