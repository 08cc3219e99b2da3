package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const publisherLogPrefix = "events:publisher"

// EventPublisher receives one DispatchEvent per dispatched command.
type EventPublisher interface {
	PublishDispatched(ctx context.Context, event *DispatchEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

func (p *NoOpPublisher) PublishDispatched(_ context.Context, _ *DispatchEvent) error {
	return nil
}

// CallbackPublisher hands every event to a function. Tests use it to capture events.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *DispatchEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *DispatchEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

func (p *CallbackPublisher) PublishDispatched(ctx context.Context, event *DispatchEvent) error {
	return p.callback(ctx, event)
}

// LogPublisher writes each event to the default slog logger at debug level,
// failures at warn.
type LogPublisher struct{}

func (p *LogPublisher) PublishDispatched(_ context.Context, e *DispatchEvent) error {
	msg := fmt.Sprintf("%s - dispatched id=%s command=%s outcome=%s code=%s duration_ms=%d",
		publisherLogPrefix, e.ID, e.Command, e.Outcome, e.Code, e.DurationMs)
	if e.Outcome == OutcomeSuccess {
		slog.Debug(msg)
	} else {
		slog.Warn(msg)
	}
	return nil
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) PublishDispatched(ctx context.Context, event *DispatchEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishDispatched(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
