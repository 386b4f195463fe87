package sending_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/sending"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo map[string]domain.TransportSettings

func (m memRepo) Get(_ context.Context, ownerID string) (*domain.TransportSettings, error) {
	s, ok := m[ownerID]
	if !ok {
		return nil, sending.ErrNotFound
	}
	return &s, nil
}

type brokenRepo struct{}

func (brokenRepo) Get(context.Context, string) (*domain.TransportSettings, error) {
	return nil, errors.New("connection reset")
}

var fallback = domain.TransportSettings{
	Host: "smtp.example.com", Username: "mailer", Password: "secret", FromEmail: "news@example.com",
}

func TestSourceFor(t *testing.T) {
	ctx := context.Background()
	repo := memRepo{
		"owner-a": {Host: "mail.a.example", Port: 465, Username: "a", Password: "pw"},
		"owner-b": {Host: "mail.b.example"},
	}
	src := sending.NewSource(repo, fallback)

	t.Run("stored settings win", func(t *testing.T) {
		s, err := src.For(ctx, "owner-a")
		require.NoError(t, err)
		assert.Equal(t, "mail.a.example", s.Host)
		assert.Equal(t, "owner-a", s.OwnerID)
		assert.Equal(t, domain.TransportSMTP, s.Kind)
		assert.True(t, s.ImplicitTLS())
	})

	t.Run("fallback for unknown owner", func(t *testing.T) {
		s, err := src.For(ctx, "owner-z")
		require.NoError(t, err)
		assert.Equal(t, "smtp.example.com", s.Host)
		assert.Equal(t, "owner-z", s.OwnerID)
	})

	t.Run("incomplete stored settings", func(t *testing.T) {
		_, err := src.For(ctx, "owner-b")
		assert.ErrorIs(t, err, sending.ErrTransportNotConfigured)
	})

	t.Run("repository failure is not masked", func(t *testing.T) {
		_, err := sending.NewSource(brokenRepo{}, fallback).For(ctx, "owner-a")
		require.Error(t, err)
		assert.NotErrorIs(t, err, sending.ErrTransportNotConfigured)
	})

	t.Run("no repository and empty fallback", func(t *testing.T) {
		_, err := sending.NewSource(nil, domain.TransportSettings{}).For(ctx, "owner-a")
		assert.ErrorIs(t, err, sending.ErrTransportNotConfigured)
	})
}
