package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sprintlane/sprintlane/internal/types"
)

// AppendAttempt writes one transition attempt record.
func (s *SQLiteStorage) AppendAttempt(ctx context.Context, attempt *types.TransitionAttempt) error {
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transition_attempts
			(tenant_id, project_id, entity_kind, entity_id, from_status, to_status,
			 allowed, acting_role, actor_id, reason, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, attempt.TenantID, attempt.ProjectID, attempt.EntityKind, attempt.EntityID,
		attempt.FromStatus, attempt.ToStatus, attempt.Allowed, attempt.ActingRole,
		attempt.ActorID, attempt.Reason, attempt.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to record transition attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get attempt ID: %w", err)
	}
	attempt.ID = id
	return nil
}

// ListAttempts returns the recorded attempts, most recent first. An empty
// entityID returns all attempts for the tenant.
func (s *SQLiteStorage) ListAttempts(ctx context.Context, tenantID, entityID string) ([]*types.TransitionAttempt, error) {
	query := `
		SELECT id, tenant_id, project_id, entity_kind, entity_id, from_status, to_status,
		       allowed, acting_role, actor_id, reason, attempted_at
		FROM transition_attempts
		WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if entityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transition attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []*types.TransitionAttempt
	for rows.Next() {
		var a types.TransitionAttempt
		if err := rows.Scan(&a.ID, &a.TenantID, &a.ProjectID, &a.EntityKind, &a.EntityID,
			&a.FromStatus, &a.ToStatus, &a.Allowed, &a.ActingRole, &a.ActorID,
			&a.Reason, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return attempts, nil
}
