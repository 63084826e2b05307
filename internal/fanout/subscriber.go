package fanout

// Subscriber is one attached consumer of the fix stream. Implementations
// must make Send safe to call from any goroutine and must fail fast
// rather than block: a subscriber whose channel is not writable is
// skipped, not waited on.
type Subscriber interface {
	// ID returns the stable handle the hub tracks the subscriber under.
	ID() string

	// Send queues one message for delivery. An error marks the subscriber
	// dead; the hub detaches it.
	Send(msg Message) error

	// Close releases the subscriber's transport.
	Close() error
}
