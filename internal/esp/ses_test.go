package esp

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/ignite/bulkmail/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	sendingEnabled bool
	accountErr     error
	sendErr        error
	inputs         []*sesv2.SendEmailInput
}

func (f *fakeSES) GetAccount(context.Context, *sesv2.GetAccountInput, ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &sesv2.GetAccountOutput{SendingEnabled: f.sendingEnabled}, nil
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

var sesSettings = domain.TransportSettings{Kind: domain.TransportSES, FromEmail: "news@engines.example", FromName: "Engines"}

func TestSESOpenChecksAccount(t *testing.T) {
	ctx := context.Background()

	_, err := NewSESDialerWithClient(&fakeSES{accountErr: errors.New("InvalidClientTokenId")}, SESOptions{}).Open(ctx, sesSettings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SES account check")

	_, err = NewSESDialerWithClient(&fakeSES{sendingEnabled: false}, SESOptions{}).Open(ctx, sesSettings)
	assert.Error(t, err)

	_, err = NewSESDialerWithClient(&fakeSES{sendingEnabled: true}, SESOptions{}).Open(ctx, domain.TransportSettings{Kind: domain.TransportSES})
	assert.Error(t, err)
}

func TestSESSendRaw(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSES{sendingEnabled: true}
	sess, err := NewSESDialerWithClient(fake, SESOptions{ConfigurationSet: "tracking"}).Open(ctx, sesSettings)
	require.NoError(t, err)

	id, err := sess.Send(ctx, &domain.EmailMessage{
		To: "ada@example.com", Subject: "Hi", HTMLContent: "<p>x</p>",
		Tags: map[string]string{"campaign_token": "tok 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, []string{"ada@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "tracking", aws.ToString(in.ConfigurationSetName))
	require.NotNil(t, in.Content.Raw)
	assert.Contains(t, string(in.Content.Raw.Data), `From: "Engines" <news@engines.example>`)
	require.Len(t, in.EmailTags, 1)
	assert.Equal(t, "tok_1", aws.ToString(in.EmailTags[0].Value))

	require.NoError(t, sess.Close())
	_, err = sess.Send(ctx, &domain.EmailMessage{To: "x@example.com"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSelectorRoutesByKind(t *testing.T) {
	ses := NewSESDialerWithClient(&fakeSES{sendingEnabled: true}, SESOptions{})
	sel := NewSelector(nil, ses)

	_, err := sel.Open(context.Background(), sesSettings)
	assert.NoError(t, err)

	_, err = sel.Open(context.Background(), domain.TransportSettings{Host: "smtp.example.com"})
	assert.Error(t, err)
}
