// internal/storage/profiles.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mcp-plate-log/internal/models"
)

// GetProfile returns all attributes stored for userID. An unknown user yields
// an empty profile, not an error.
func (s *SQLiteStorage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT name, value, updated_at
        FROM profile_attributes
        WHERE user_id = ?
        ORDER BY name
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	defer rows.Close()

	profile := &models.Profile{
		UserID:     userID,
		Attributes: map[string]string{},
	}
	for rows.Next() {
		var name, value, updatedAt string
		if err := rows.Scan(&name, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan profile attribute: %w", err)
		}
		profile.Attributes[name] = value

		ts, err := parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		if ts.After(profile.UpdatedAt) {
			profile.UpdatedAt = ts
		}
	}

	return profile, rows.Err()
}

// SetProfile merges attrs into the user's profile; attributes not named in
// attrs keep their stored values.
func (s *SQLiteStorage) SetProfile(ctx context.Context, userID string, attrs map[string]string) error {
	if userID == "" {
		return errors.New("user id is required")
	}
	for name := range attrs {
		if strings.TrimSpace(name) == "" {
			return errors.New("attribute name cannot be empty")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for name, value := range attrs {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO profile_attributes (user_id, name, value, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(user_id, name) DO UPDATE SET
                value = excluded.value,
                updated_at = excluded.updated_at
        `, userID, name, value, now)
		if err != nil {
			return fmt.Errorf("failed to upsert attribute %s: %w", name, err)
		}
	}

	return tx.Commit()
}
