package docket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// DecisionSubscription is an active Pub/Sub subscription to decision events.
// Caller must call Close() when done to clean up resources.
type DecisionSubscription struct {
	events <-chan *DecisionEvent
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of decision events.
// The channel is closed when the subscription is closed or the context is cancelled.
func (s *DecisionSubscription) Events() <-chan *DecisionEvent {
	return s.events
}

// Errors returns the channel of non-fatal subscription errors (undecodable payloads).
func (s *DecisionSubscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *DecisionSubscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// SubscribeDecisionEvents subscribes to decision events for this namespace.
//
// Events are delivered on a buffered channel (size 10). Redis Pub/Sub is at-most-once,
// so a slow subscriber may miss events.
func (c *Client) SubscribeDecisionEvents(ctx context.Context) (*DecisionSubscription, error) {
	pubsub := c.rdb.Subscribe(ctx, DecisionEventsChannel(c.namespace))

	// Wait for the subscription to be confirmed so no event published right after
	// this call returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to decision events: %w", err)
	}

	eventsChan := make(chan *DecisionEvent, 10)
	errorsChan := make(chan error, 10)
	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var event DecisionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal decision event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- &event:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &DecisionSubscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}
