package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/bulkmail/internal/domain"
	"github.com/ignite/bulkmail/internal/service/sending"
)

// TransportSettingsRepo implements sending.Repository against PostgreSQL.
type TransportSettingsRepo struct{ db *sql.DB }

// NewTransportSettingsRepo creates a Postgres-backed settings repository.
func NewTransportSettingsRepo(db *sql.DB) *TransportSettingsRepo {
	return &TransportSettingsRepo{db: db}
}

func (r *TransportSettingsRepo) Get(ctx context.Context, ownerID string) (*domain.TransportSettings, error) {
	s := &domain.TransportSettings{OwnerID: ownerID}
	err := r.db.QueryRowContext(ctx, `
		SELECT kind, host, port, username, password, from_name, from_email, insecure_skip_verify
		FROM transport_settings
		WHERE owner_id = $1
	`, ownerID).Scan(&s.Kind, &s.Host, &s.Port, &s.Username, &s.Password,
		&s.FromName, &s.FromEmail, &s.InsecureSkipVerify)
	if err == sql.ErrNoRows {
		return nil, sending.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transport settings: %w", err)
	}
	return s, nil
}
