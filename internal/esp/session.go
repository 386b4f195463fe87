package esp

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/bulkmail/internal/domain"
)

// ErrSessionClosed is returned by Send after Close.
var ErrSessionClosed = errors.New("mail session closed")

// Session delivers messages over one established transport session.
type Session interface {
	// Send delivers one message and returns the transport's message id.
	Send(ctx context.Context, msg *domain.EmailMessage) (string, error)
	Close() error
}

// Dialer opens sessions. A failure from Open means the run cannot start
// (bad credentials, unreachable host) as opposed to a per-message failure.
type Dialer interface {
	Open(ctx context.Context, settings domain.TransportSettings) (Session, error)
}

// Selector routes Open to the dialer registered for the settings' kind.
type Selector struct {
	dialers map[domain.TransportKind]Dialer
}

// NewSelector builds a Selector. Nil dialers are skipped.
func NewSelector(smtp, ses Dialer) *Selector {
	s := &Selector{dialers: make(map[domain.TransportKind]Dialer)}
	if smtp != nil {
		s.dialers[domain.TransportSMTP] = smtp
	}
	if ses != nil {
		s.dialers[domain.TransportSES] = ses
	}
	return s
}

func (s *Selector) Open(ctx context.Context, settings domain.TransportSettings) (Session, error) {
	kind := settings.Kind
	if kind == "" {
		kind = domain.TransportSMTP
	}
	d, ok := s.dialers[kind]
	if !ok {
		return nil, fmt.Errorf("no dialer for transport %q", kind)
	}
	return d.Open(ctx, settings)
}
