package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/fitgoals/apiserver/types"
	"github.com/google/uuid"
)

const goalColumns = `id, user_id, name, description, type, start_date, end_date, target_value, unit, progress, created_at, updated_at`

// GoalRepository handles persistence for goals. Every single-goal statement
// filters on both id and user_id so one user can never reach another's rows.
type GoalRepository struct {
	db *sql.DB
}

func NewGoalRepository(db *sql.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *GoalRepository) ListByUser(ctx context.Context, userID string) ([]types.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals WHERE user_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]types.Goal, 0)
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return goals, nil
}

func (r *GoalRepository) GetForUser(ctx context.Context, id, userID string) (types.Goal, error) {
	const query = `SELECT ` + goalColumns + ` FROM goals WHERE id = $1 AND user_id = $2`
	return r.one(r.db.QueryRowContext(ctx, query, id, userID))
}

func (r *GoalRepository) Create(ctx context.Context, goal types.Goal) (types.Goal, error) {
	now := time.Now().UTC()
	goal.ID = uuid.NewString()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	if goal.Progress == nil {
		goal.Progress = []types.ProgressEntry{}
	}

	progressJSON, err := json.Marshal(goal.Progress)
	if err != nil {
		return types.Goal{}, err
	}

	const query = `
		INSERT INTO goals (id, user_id, name, description, type, start_date, end_date, target_value, unit, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		goal.ID,
		goal.UserID,
		goal.Name,
		goal.Description,
		string(goal.Type),
		goal.StartDate,
		goal.EndDate,
		goal.TargetValue,
		goal.Unit,
		progressJSON,
		goal.CreatedAt,
		goal.UpdatedAt,
	); err != nil {
		return types.Goal{}, err
	}

	return goal, nil
}

// UpdateForUser replaces the mutable fields of the goal identified by
// (goal.ID, goal.UserID) in a single statement and returns the stored row.
// A nil goal.Progress leaves the stored progress untouched.
func (r *GoalRepository) UpdateForUser(ctx context.Context, goal types.Goal) (types.Goal, error) {
	var progressJSON any
	if goal.Progress != nil {
		encoded, err := json.Marshal(goal.Progress)
		if err != nil {
			return types.Goal{}, err
		}
		progressJSON = encoded
	}

	const query = `
		UPDATE goals
		SET name = $1,
			description = $2,
			type = $3,
			start_date = $4,
			end_date = $5,
			target_value = $6,
			unit = $7,
			progress = COALESCE($8::jsonb, progress),
			updated_at = $9
		WHERE id = $10 AND user_id = $11
		RETURNING ` + goalColumns
	return r.one(r.db.QueryRowContext(
		ctx,
		query,
		goal.Name,
		goal.Description,
		string(goal.Type),
		goal.StartDate,
		goal.EndDate,
		goal.TargetValue,
		goal.Unit,
		progressJSON,
		time.Now().UTC(),
		goal.ID,
		goal.UserID,
	))
}

// AppendProgress appends entry to the goal's progress list atomically.
func (r *GoalRepository) AppendProgress(ctx context.Context, id, userID string, entry types.ProgressEntry) (types.Goal, error) {
	entryJSON, err := json.Marshal([]types.ProgressEntry{entry})
	if err != nil {
		return types.Goal{}, err
	}

	const query = `
		UPDATE goals
		SET progress = progress || $1::jsonb,
			updated_at = $2
		WHERE id = $3 AND user_id = $4
		RETURNING ` + goalColumns
	return r.one(r.db.QueryRowContext(ctx, query, entryJSON, time.Now().UTC(), id, userID))
}

func (r *GoalRepository) DeleteForUser(ctx context.Context, id, userID string) error {
	const query = `DELETE FROM goals WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GoalRepository) one(row *sql.Row) (types.Goal, error) {
	goal, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Goal{}, ErrNotFound
		}
		return types.Goal{}, err
	}
	return goal, nil
}

func scanGoal(row rowScanner) (types.Goal, error) {
	var goal types.Goal
	var goalType string
	var progressJSON []byte
	if err := row.Scan(
		&goal.ID,
		&goal.UserID,
		&goal.Name,
		&goal.Description,
		&goalType,
		&goal.StartDate,
		&goal.EndDate,
		&goal.TargetValue,
		&goal.Unit,
		&progressJSON,
		&goal.CreatedAt,
		&goal.UpdatedAt,
	); err != nil {
		return types.Goal{}, err
	}

	goal.Type = types.GoalType(goalType)
	goal.Progress = []types.ProgressEntry{}
	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &goal.Progress); err != nil {
			return types.Goal{}, err
		}
	}
	return goal, nil
}
