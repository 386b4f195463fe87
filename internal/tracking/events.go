package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	trackingsvc "github.com/ignite/bulkmail/internal/service/tracking"
)

// Event is one engagement observation taken from a public tracking URL.
// It is the unit handed to a Recorder and the JSON body of queued messages.
type Event struct {
	Type        domain.TrackingEventType `json:"event_type"`
	Token       string                   `json:"token"`
	RecipientID string                   `json:"recipient_id"`
	URL         string                   `json:"url,omitempty"`
	IPAddress   string                   `json:"ip_address"`
	UserAgent   string                   `json:"user_agent"`
	Timestamp   time.Time                `json:"timestamp"`
}

func (e Event) meta() domain.ClientMeta {
	return domain.ClientMeta{IPAddress: e.IPAddress, UserAgent: e.UserAgent, At: e.Timestamp}
}

// Ledger is the part of the tracking ledger the public endpoints write to.
type Ledger interface {
	RecordOpen(ctx context.Context, token, recipientID string, meta domain.ClientMeta) (domain.EngagementResult, error)
	RecordClick(ctx context.Context, token, recipientID, destination string, meta domain.ClientMeta) (domain.EngagementResult, error)
	RecordUnsubscribe(ctx context.Context, token, recipientID string) (domain.EngagementResult, error)
}

// Recorder accepts events for asynchronous application. Record never blocks
// on the ledger and never reports failure to the caller.
type Recorder interface {
	Record(evt Event)
}

// Apply writes one event to the ledger.
func Apply(ctx context.Context, l Ledger, evt Event) error {
	var err error
	switch evt.Type {
	case domain.EventOpen:
		_, err = l.RecordOpen(ctx, evt.Token, evt.RecipientID, evt.meta())
	case domain.EventClick:
		_, err = l.RecordClick(ctx, evt.Token, evt.RecipientID, evt.URL, evt.meta())
	case domain.EventUnsubscribe:
		_, err = l.RecordUnsubscribe(ctx, evt.Token, evt.RecipientID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Type)
	}
	return err
}

// ErrUnknownEvent is returned by Apply for an unrecognised event type.
var ErrUnknownEvent = errors.New("unknown tracking event type")

// permanent reports whether retrying evt can never succeed.
func permanent(err error) bool {
	return errors.Is(err, trackingsvc.ErrRecordNotFound) ||
		errors.Is(err, trackingsvc.ErrMissingDestination) ||
		errors.Is(err, trackingsvc.ErrMissingRecipient) ||
		errors.Is(err, ErrUnknownEvent)
}
