package esp

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used here.
type SESAPI interface {
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configure the SES dialer.
type SESOptions struct {
	Region           string
	AccessKey        string
	SecretKey        string
	ConfigurationSet string
}

// SESDialer opens sessions against Amazon SES. Opening verifies the
// account can send, which is the SES equivalent of SMTP authentication.
type SESDialer struct {
	opts      SESOptions
	newClient func(ctx context.Context) (SESAPI, error)
	now       func() time.Time
}

// NewSESDialer creates a dialer using static credentials when given,
// otherwise the default AWS credential chain.
func NewSESDialer(opts SESOptions) *SESDialer {
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	d := &SESDialer{opts: opts, now: time.Now}
	d.newClient = func(ctx context.Context) (SESAPI, error) {
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
		if opts.AccessKey != "" && opts.SecretKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return sesv2.NewFromConfig(cfg), nil
	}
	return d
}

// NewSESDialerWithClient uses a ready client.
func NewSESDialerWithClient(client SESAPI, opts SESOptions) *SESDialer {
	return &SESDialer{
		opts:      opts,
		newClient: func(context.Context) (SESAPI, error) { return client, nil },
		now:       time.Now,
	}
}

func (d *SESDialer) Open(ctx context.Context, ts domain.TransportSettings) (Session, error) {
	if ts.FromEmail == "" {
		return nil, fmt.Errorf("ses sender address is not configured")
	}
	client, err := d.newClient(ctx)
	if err != nil {
		return nil, err
	}
	acct, err := client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return nil, fmt.Errorf("SES account check: %w", err)
	}
	if !acct.SendingEnabled {
		return nil, fmt.Errorf("SES sending is disabled for this account")
	}
	return &sesSession{client: client, settings: ts, configSet: d.opts.ConfigurationSet, now: d.now}, nil
}

type sesSession struct {
	client    SESAPI
	settings  domain.TransportSettings
	configSet string
	now       func() time.Time
	closed    bool
}

var tagValueRe = regexp.MustCompile(`[^A-Za-z0-9_\-.@]`)

func (s *sesSession) Send(ctx context.Context, msg *domain.EmailMessage) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if msg.FromEmail == "" {
		msg.FromEmail = s.settings.FromEmail
	}
	if msg.FromName == "" {
		msg.FromName = s.settings.FromName
	}
	raw, err := BuildMIME(msg, NewMessageID(msg.FromEmail), s.now())
	if err != nil {
		return "", fmt.Errorf("build message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.FromEmail),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}
	keys := make([]string, 0, len(msg.Tags))
	for k := range msg.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name:  aws.String(tagValueRe.ReplaceAllString(k, "_")),
			Value: aws.String(tagValueRe.ReplaceAllString(msg.Tags[k], "_")),
		})
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		logger.Warn("ses send failed", "to", msg.To, "error", err)
		return "", fmt.Errorf("SES send: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (s *sesSession) Close() error {
	s.closed = true
	return nil
}
