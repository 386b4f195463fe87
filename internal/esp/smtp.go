package esp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// SMTPDialer opens authenticated SMTP sessions. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTPDialer struct {
	Timeout  time.Duration
	HeloName string
	now      func() time.Time
}

// NewSMTPDialer returns a dialer with the given connect/IO timeout.
func NewSMTPDialer(timeout time.Duration) *SMTPDialer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SMTPDialer{Timeout: timeout, now: time.Now}
}

func (d *SMTPDialer) Open(ctx context.Context, ts domain.TransportSettings) (Session, error) {
	if ts.Host == "" {
		return nil, fmt.Errorf("smtp host is not configured")
	}
	addr := net.JoinHostPort(ts.Host, strconv.Itoa(ts.EffectivePort()))
	tlsCfg := &tls.Config{ServerName: ts.Host, InsecureSkipVerify: ts.InsecureSkipVerify}
	netDialer := &net.Dialer{Timeout: d.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if ts.ImplicitTLS() {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	conn.SetDeadline(time.Now().Add(d.Timeout))

	c, err := smtp.NewClient(conn, ts.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP greeting: %w", err)
	}
	if d.HeloName != "" {
		if err := c.Hello(d.HeloName); err != nil {
			c.Close()
			return nil, fmt.Errorf("EHLO: %w", err)
		}
	}
	if !ts.ImplicitTLS() {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsCfg); err != nil {
				c.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}
	if ts.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			c.Close()
			return nil, fmt.Errorf("SMTP server %s does not offer AUTH", addr)
		}
		if err := c.Auth(smtp.PlainAuth("", ts.Username, ts.Password, ts.Host)); err != nil {
			c.Close()
			return nil, fmt.Errorf("SMTP AUTH: %w", err)
		}
	}

	now := d.now
	if now == nil {
		now = time.Now
	}
	log.Printf("[esp.SMTP] Session open to %s as %s", addr, logger.RedactEmail(ts.Sender()))
	return &smtpSession{
		client:   c,
		conn:     conn,
		timeout:  d.Timeout,
		from:     ts.Sender(),
		fromName: ts.FromName,
		now:      now,
	}, nil
}

type smtpSession struct {
	mu       sync.Mutex
	client   *smtp.Client
	conn     net.Conn
	timeout  time.Duration
	from     string
	fromName string
	now      func() time.Time
	closed   bool
}

// Send runs one MAIL/RCPT/DATA transaction. A failed transaction is reset
// so the session stays usable for the next recipient.
func (s *smtpSession) Send(ctx context.Context, msg *domain.EmailMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	s.conn.SetDeadline(deadline)

	if msg.FromEmail == "" {
		msg.FromEmail = s.from
	}
	if msg.FromName == "" {
		msg.FromName = s.fromName
	}
	id := NewMessageID(msg.FromEmail)
	raw, err := BuildMIME(msg, id, s.now())
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	if err := s.client.Mail(s.from); err != nil {
		s.reset()
		return "", fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := s.client.Rcpt(msg.To); err != nil {
		s.reset()
		return "", fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := s.client.Data()
	if err != nil {
		s.reset()
		return "", fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		s.reset()
		return "", fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		s.reset()
		return "", fmt.Errorf("DATA close: %w", err)
	}
	return id, nil
}

func (s *smtpSession) reset() {
	if err := s.client.Reset(); err != nil {
		logger.Debug("smtp reset failed", "error", err)
	}
}

func (s *smtpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.SetDeadline(time.Now().Add(s.timeout))
	if err := s.client.Quit(); err != nil {
		s.client.Close()
		return err
	}
	return nil
}
