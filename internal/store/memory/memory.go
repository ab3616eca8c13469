// Package memory provides in-process implementations of the user and goal
// repositories. They honour the same owner-scoping and error contract as the
// postgres repositories and are used for tests and local experiments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fitgoals/apiserver/internal/store"
	"github.com/fitgoals/apiserver/types"
	"github.com/google/uuid"
)

// UserRepository is a map-backed user store.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]types.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]types.User)}
}

func (r *UserRepository) GetByID(_ context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) FindByUsernameOrEmail(_ context.Context, username, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Username == username || user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

// GoalRepository is a map-backed goal store.
type GoalRepository struct {
	mu    sync.Mutex
	goals map[string]types.Goal
	seq   int64
	order map[string]int64
}

func NewGoalRepository() *GoalRepository {
	return &GoalRepository{
		goals: make(map[string]types.Goal),
		order: make(map[string]int64),
	}
}

func (r *GoalRepository) ListByUser(_ context.Context, userID string) ([]types.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goals := make([]types.Goal, 0)
	for _, goal := range r.goals {
		if goal.UserID == userID {
			goals = append(goals, clone(goal))
		}
	}
	sort.Slice(goals, func(i, j int) bool {
		return r.order[goals[i].ID] < r.order[goals[j].ID]
	})
	return goals, nil
}

func (r *GoalRepository) GetForUser(_ context.Context, id, userID string) (types.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goal, ok := r.owned(id, userID)
	if !ok {
		return types.Goal{}, store.ErrNotFound
	}
	return clone(goal), nil
}

func (r *GoalRepository) Create(_ context.Context, goal types.Goal) (types.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	goal.ID = uuid.NewString()
	goal.CreatedAt = now
	goal.UpdatedAt = now
	if goal.Progress == nil {
		goal.Progress = []types.ProgressEntry{}
	}
	r.seq++
	r.order[goal.ID] = r.seq
	r.goals[goal.ID] = clone(goal)
	return clone(goal), nil
}

func (r *GoalRepository) UpdateForUser(_ context.Context, goal types.Goal) (types.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.owned(goal.ID, goal.UserID)
	if !ok {
		return types.Goal{}, store.ErrNotFound
	}
	if goal.Progress == nil {
		goal.Progress = current.Progress
	}
	goal.CreatedAt = current.CreatedAt
	goal.UpdatedAt = time.Now().UTC()
	r.goals[goal.ID] = clone(goal)
	return clone(goal), nil
}

func (r *GoalRepository) AppendProgress(_ context.Context, id, userID string, entry types.ProgressEntry) (types.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	goal, ok := r.owned(id, userID)
	if !ok {
		return types.Goal{}, store.ErrNotFound
	}
	goal = clone(goal)
	goal.Progress = append(goal.Progress, entry)
	goal.UpdatedAt = time.Now().UTC()
	r.goals[id] = goal
	return clone(goal), nil
}

func (r *GoalRepository) DeleteForUser(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owned(id, userID); !ok {
		return store.ErrNotFound
	}
	delete(r.goals, id)
	delete(r.order, id)
	return nil
}

func (r *GoalRepository) owned(id, userID string) (types.Goal, bool) {
	goal, ok := r.goals[id]
	if !ok || goal.UserID != userID {
		return types.Goal{}, false
	}
	return goal, true
}

func clone(goal types.Goal) types.Goal {
	progress := make([]types.ProgressEntry, len(goal.Progress))
	copy(progress, goal.Progress)
	goal.Progress = progress
	return goal
}
