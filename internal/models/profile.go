// internal/models/profile.go
package models

import "time"

// Profile is the flat set of health attributes stored for a user
// (age, height_cm, weight_kg, goal, ...).
type Profile struct {
	UserID     string            `json:"user_id"`
	Attributes map[string]string `json:"attributes"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
}
