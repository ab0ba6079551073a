package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"edgegrid/internal/events"
	"edgegrid/internal/models"
)

type sender interface {
	Send(ctx context.Context, msg string) error
}

// Relay forwards high and critical broadcasts to an operator chat. Delivery
// runs on its own goroutine; a failed delivery never reaches the sender of
// the broadcast.
type Relay struct {
	out     sender
	queue   chan string
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger

	initial    time.Duration
	maxElapsed time.Duration
}

var _ events.Sink = (*Relay)(nil)

func NewRelay(out sender, logger *slog.Logger) *Relay {
	return &Relay{
		out:   out,
		queue: make(chan string, 64),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "telegram",
			Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		log:        logger,
		initial:    500 * time.Millisecond,
		maxElapsed: 2 * time.Minute,
	}
}

// Publish picks relay-worthy broadcasts off the event stream.
func (r *Relay) Publish(_ context.Context, e events.Event) {
	if e.Kind != events.BroadcastSent {
		return
	}
	p, _ := e.Data["priority"].(models.Priority)
	if p != models.PriorityHigh && p != models.PriorityCritical {
		return
	}
	select {
	case r.queue <- formatBroadcast(e):
	default:
		r.log.Warn("relay queue full, broadcast not forwarded", "broadcast_id", e.EntityID)
	}
}

func formatBroadcast(e events.Event) string {
	p, _ := e.Data["priority"].(models.Priority)
	body, _ := e.Data["body"].(string)
	var channels []string
	if cs, ok := e.Data["channels"].([]models.Channel); ok {
		for _, c := range cs {
			channels = append(channels, string(c))
		}
	}
	minutes, _ := e.Data["duration_minutes"].(int)
	return fmt.Sprintf("[%s] %s\nChannels: %s | Duration: %d min | Issued by %s",
		strings.ToUpper(string(p)), body, strings.Join(channels, ", "), minutes, e.Actor)
}

// Run delivers queued messages until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			if err := r.deliver(ctx, msg); err != nil {
				r.log.Error("telegram relay failed", "err", err)
			}
		}
	}
}

func (r *Relay) deliver(ctx context.Context, msg string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	bo.MaxElapsedTime = r.maxElapsed
	return backoff.Retry(func() error {
		_, err := r.breaker.Execute(func() (any, error) {
			return nil, r.out.Send(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
