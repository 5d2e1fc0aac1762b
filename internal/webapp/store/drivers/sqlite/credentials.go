package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/webauth/pkg/credcache"
)

type credentialsRepo struct {
	db *sql.DB
}

const upsertCredential = `
INSERT INTO credentials (id, session_key, subject_id, scope_key, sealed, expires_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_key, subject_id, scope_key) DO UPDATE SET
    id         = excluded.id,
    sealed     = excluded.sealed,
    expires_at = excluded.expires_at,
    created_at = excluded.created_at`

func (r *credentialsRepo) Put(ctx context.Context, e credcache.Entry) error {
	_, err := r.db.ExecContext(ctx, upsertCredential,
		e.ID,
		e.SessionKey,
		e.SubjectID,
		credcache.ScopeKey(e.Scopes),
		e.Sealed,
		e.ExpiresAt.UnixMilli(),
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put credential: %w", err)
	}
	return nil
}

const listCredentials = `
SELECT id, session_key, subject_id, scope_key, sealed, expires_at, created_at
FROM credentials
WHERE session_key = ? AND subject_id = ? AND expires_at > ?
ORDER BY expires_at DESC`

func (r *credentialsRepo) List(ctx context.Context, sessionKey, subjectID string, now time.Time) ([]credcache.Entry, error) {
	rows, err := r.db.QueryContext(ctx, listCredentials, sessionKey, subjectID, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list credentials: %w", err)
	}
	defer rows.Close()

	var out []credcache.Entry
	for rows.Next() {
		var (
			e                  credcache.Entry
			scopeKey           string
			expires, createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.SessionKey, &e.SubjectID, &scopeKey, &e.Sealed, &expires, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan credential: %w", err)
		}
		e.Scopes = strings.Fields(scopeKey)
		e.ExpiresAt = time.UnixMilli(expires).UTC()
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list credentials: %w", err)
	}
	return out, nil
}

const existsCredential = `
SELECT 1 FROM credentials
WHERE session_key = ? AND subject_id = ? AND expires_at > ?
LIMIT 1`

func (r *credentialsRepo) Exists(ctx context.Context, sessionKey, subjectID string, now time.Time) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, existsCredential, sessionKey, subjectID, now.UnixMilli()).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("sqlite: check credential: %w", err)
	}
	return true, nil
}

func (r *credentialsRepo) DeleteSession(ctx context.Context, sessionKey string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE session_key = ?`, sessionKey)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete session credentials: %w", err)
	}
	return res.RowsAffected()
}

func (r *credentialsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete expired credentials: %w", err)
	}
	return res.RowsAffected()
}
