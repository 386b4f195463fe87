package domain

// TransportKind identifies the mail transport used for a dispatch run.
type TransportKind string

const (
	TransportSMTP TransportKind = "smtp"
	TransportSES  TransportKind = "ses"
)

// TransportSettings holds the parameters needed to open a mail session.
type TransportSettings struct {
	OwnerID   string        `json:"ownerId" db:"owner_id"`
	Kind      TransportKind `json:"kind" db:"kind"`
	Host      string        `json:"host" db:"host"`
	Port      int           `json:"port" db:"port"`
	Username  string        `json:"username" db:"username"`
	Password  string        `json:"-" db:"password"`
	FromName  string        `json:"fromName" db:"from_name"`
	FromEmail string        `json:"fromEmail" db:"from_email"`

	InsecureSkipVerify bool `json:"-" db:"-"`
}

// Configured reports whether the settings are complete enough to attempt a
// session. Reachability is not checked here.
func (s TransportSettings) Configured() bool {
	if s.Kind == TransportSES {
		return s.FromEmail != ""
	}
	return s.Host != "" && s.Username != "" && s.Password != ""
}

// EffectivePort returns Port, defaulting to 587.
func (s TransportSettings) EffectivePort() int {
	if s.Port == 0 {
		return 587
	}
	return s.Port
}

// ImplicitTLS reports whether the session starts in TLS (SMTPS on 465).
func (s TransportSettings) ImplicitTLS() bool {
	return s.EffectivePort() == 465
}

// Sender returns the envelope sender address.
func (s TransportSettings) Sender() string {
	if s.FromEmail != "" {
		return s.FromEmail
	}
	return s.Username
}

// MessageAttachment is an attachment with its bytes resolved.
type MessageAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// EmailMessage is the fully-resolved message handed to a transport session.
// Personalization and tracking instrumentation are complete by this point.
type EmailMessage struct {
	To          string
	ToName      string
	FromName    string
	FromEmail   string
	Subject     string
	HTMLContent string
	TextContent string
	Headers     map[string]string
	Attachments []MessageAttachment
	Tags        map[string]string
}
