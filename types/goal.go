package types

import "time"

// GoalType enumerates the kinds of fitness goals a user can track.
type GoalType string

const (
	GoalTypeWeightLoss GoalType = "weight-loss"
	GoalTypeMuscleGain GoalType = "muscle-gain"
	GoalTypeEndurance  GoalType = "endurance"
	GoalTypeOther      GoalType = "other"
)

// Valid reports whether t is one of the known goal types.
func (t GoalType) Valid() bool {
	switch t {
	case GoalTypeWeightLoss, GoalTypeMuscleGain, GoalTypeEndurance, GoalTypeOther:
		return true
	default:
		return false
	}
}

// Goal is a fitness target owned by a single user.
type Goal struct {
	// ID is the unique identifier of the goal (UUID).
	ID string `json:"id" db:"id"`

	// UserID identifies the owning user. Every store operation filters on it.
	UserID string `json:"userId" db:"user_id"`

	// Name is the short human-readable title of the goal.
	Name string `json:"name" db:"name"`

	// Description is an optional free-form note.
	Description string `json:"description,omitempty" db:"description"`

	// Type is the goal category.
	Type GoalType `json:"type" db:"type"`

	// StartDate and EndDate bound the period the goal is tracked over.
	StartDate time.Time `json:"startDate" db:"start_date"`
	EndDate   time.Time `json:"endDate" db:"end_date"`

	// TargetValue is the value the user aims to reach, measured in Unit.
	TargetValue float64 `json:"targetValue" db:"target_value"`
	Unit        string  `json:"unit" db:"unit"`

	// Progress is the ordered history of recorded values.
	Progress []ProgressEntry `json:"progress" db:"progress"`

	// CreatedAt is the timestamp at which the goal was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the goal.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// ProgressEntry is a single measurement recorded against a goal.
type ProgressEntry struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}
