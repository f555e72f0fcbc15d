package orchestrator

// EventSink delivers stream events to the connected client, in order.
// Send returns an error once the client is gone; the orchestrator treats
// that as cancellation and stops emitting.
type EventSink interface {
	Send(event string, data any) error
}
