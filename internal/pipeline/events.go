package pipeline

// EventKind identifies one progress event.
type EventKind string

const (
	EventBatchCompleted EventKind = "batch_completed"
	EventRowFailed      EventKind = "row_failed"
	EventRunCompleted   EventKind = "run_completed"
)

// Event is one discrete progress notification. The engine emits events
// through a sink callback and makes no assumption about the rendering
// surface consuming them.
type Event struct {
	Kind  EventKind
	RunID string

	// Batch/Batches are set for batch_completed (1-based).
	Batch   int
	Batches int

	// Row is the original row index for row_failed.
	Row int
	Err error

	// RowsDone/RowsTotal track overall progress.
	RowsDone  int
	RowsTotal int
}

// Sink consumes progress events. Sinks must be safe for calls from the
// run goroutine; they should return quickly.
type Sink func(Event)

func (b *BatchEnricher) emit(ev Event) {
	if b.opts.OnEvent != nil {
		b.opts.OnEvent(ev)
	}
}
