package domain

// RunState is the terminal state of one digest run.
type RunState string

const (
	RunNoOp      RunState = "noop"       // no recipients in the store
	RunNoContent RunState = "no_content" // nothing could be fetched
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed" // store, template, sender or session failure
)

// DeliveryStatus is the outcome of one recipient's digest.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliverySkipped DeliveryStatus = "skipped" // invalid recipient address
	DeliveryFailed  DeliveryStatus = "failed"  // transport refused or errored
)
