package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Subscriber.Send when the outgoing queue
	// has no room. The message is dropped.
	ErrQueueFull = errors.New("subscriber queue full")
	// ErrClosed is returned by Subscriber.Send after the connection ended.
	ErrClosed = errors.New("subscriber closed")
)

// TransportError is a failed delivery to one subscriber.
type TransportError struct {
	SubscriberID string
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.SubscriberID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
