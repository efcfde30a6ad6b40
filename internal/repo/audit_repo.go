package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/signalix/reverseotp/internal/model"
)

// AuditRepo defines the interface for the verification audit log
type AuditRepo interface {
	RecordVerification(ctx context.Context, ev model.VerificationEvent) error
	CountByUser(ctx context.Context, userID string) (int, error)
}

type auditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a PostgreSQL-backed AuditRepo
func NewAuditRepo(db *sql.DB) AuditRepo {
	return &auditRepo{db: db}
}

// RecordVerification inserts one row per verified request. A request id is recorded at most once.
func (r *auditRepo) RecordVerification(ctx context.Context, ev model.VerificationEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_events
			(request_id, user_id, phone_number, sender, token_id, verified_at, credential_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO NOTHING
	`, ev.RequestID, ev.UserID, ev.PhoneNumber, ev.Sender, ev.TokenID, ev.VerifiedAt, ev.CredentialExpiresAt)
	if err != nil {
		return fmt.Errorf("insert verification event: %w", err)
	}
	return nil
}

// CountByUser returns how many verifications were recorded for the user.
func (r *auditRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verification_events WHERE user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count verification events: %w", err)
	}
	return count, nil
}

type nopAuditRepo struct{}

// NewNopAuditRepo returns an AuditRepo that discards events, used when no database is configured
func NewNopAuditRepo() AuditRepo {
	return nopAuditRepo{}
}

func (nopAuditRepo) RecordVerification(context.Context, model.VerificationEvent) error { return nil }

func (nopAuditRepo) CountByUser(context.Context, string) (int, error) { return 0, nil }
