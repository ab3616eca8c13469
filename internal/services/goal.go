package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"github.com/fitgoals/apiserver/internal/storage"
	"github.com/fitgoals/apiserver/internal/store"
	"github.com/fitgoals/apiserver/types"
)

const (
	goalNotFoundMessage   = "Goal not found"
	exportNotFoundMessage = "Export not found"
	exportContentType     = "application/json"
)

// Export names are the unix second they were taken at.
var exportNamePattern = regexp.MustCompile(`^[0-9]+\.json$`)

// GoalRepository defines owner-scoped persistence operations for goals.
type GoalRepository interface {
	ListByUser(ctx context.Context, userID string) ([]types.Goal, error)
	GetForUser(ctx context.Context, id, userID string) (types.Goal, error)
	Create(ctx context.Context, goal types.Goal) (types.Goal, error)
	UpdateForUser(ctx context.Context, goal types.Goal) (types.Goal, error)
	AppendProgress(ctx context.Context, id, userID string, entry types.ProgressEntry) (types.Goal, error)
	DeleteForUser(ctx context.Context, id, userID string) error
}

// ObjectStore holds goal export snapshots. Get reports a missing key as
// storage.ErrObjectNotFound; Delete of a missing key is not an error.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// GoalService encapsulates goal use-cases. Every operation is scoped to the
// authenticated user; goals owned by anyone else behave as nonexistent.
type GoalService struct {
	repo    GoalRepository
	events  *GoalEvents
	exports ObjectStore
	logger  *slog.Logger
	now     func() time.Time
}

// GoalServiceOption customizes a GoalService.
type GoalServiceOption func(*GoalService)

// WithGoalEvents enables goal lifecycle event publication.
func WithGoalEvents(events *GoalEvents) GoalServiceOption {
	return func(s *GoalService) {
		s.events = events
	}
}

// WithExportStore enables goal exports to the given object store.
func WithExportStore(objects ObjectStore) GoalServiceOption {
	return func(s *GoalService) {
		s.exports = objects
	}
}

func NewGoalService(repo GoalRepository, logger *slog.Logger, opts ...GoalServiceOption) *GoalService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GoalService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every goal owned by userID. An empty slice is a valid result.
func (s *GoalService) List(ctx context.Context, userID string) ([]types.Goal, error) {
	goals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError("Failed to list goals", err)
	}
	return goals, nil
}

func (s *GoalService) Get(ctx context.Context, userID, id string) (types.Goal, error) {
	if !isValidID(id) {
		return types.Goal{}, notFoundError(goalNotFoundMessage)
	}
	goal, err := s.repo.GetForUser(ctx, id, userID)
	if err != nil {
		return types.Goal{}, s.storeError(err, "Failed to fetch goal")
	}
	return goal, nil
}

func (s *GoalService) Create(ctx context.Context, userID string, in GoalInput) (types.Goal, error) {
	goal, err := in.toGoal(userID)
	if err != nil {
		return types.Goal{}, err
	}

	created, err := s.repo.Create(ctx, goal)
	if err != nil {
		return types.Goal{}, internalError("Failed to create goal", err)
	}

	s.events.goalChanged(ctx, EventGoalCreated, created)
	return created, nil
}

// Update replaces the mutable fields of the goal. Progress is kept unless
// the input carries a replacement list.
func (s *GoalService) Update(ctx context.Context, userID, id string, in GoalInput) (types.Goal, error) {
	goal, err := in.toGoal(userID)
	if err != nil {
		return types.Goal{}, err
	}
	if !isValidID(id) {
		return types.Goal{}, notFoundError(goalNotFoundMessage)
	}
	goal.ID = id

	updated, err := s.repo.UpdateForUser(ctx, goal)
	if err != nil {
		return types.Goal{}, s.storeError(err, "Failed to update goal")
	}

	s.events.goalChanged(ctx, EventGoalUpdated, updated)
	return updated, nil
}

// RecordProgress appends a single measurement to the goal's progress.
func (s *GoalService) RecordProgress(ctx context.Context, userID, id string, in ProgressInput) (types.Goal, error) {
	entry, fields := in.toEntry()
	if err := fields.err(); err != nil {
		return types.Goal{}, err
	}
	if !isValidID(id) {
		return types.Goal{}, notFoundError(goalNotFoundMessage)
	}

	updated, err := s.repo.AppendProgress(ctx, id, userID, entry)
	if err != nil {
		return types.Goal{}, s.storeError(err, "Failed to record progress")
	}

	s.events.goalChanged(ctx, EventGoalProgressRecorded, updated)
	return updated, nil
}

func (s *GoalService) Delete(ctx context.Context, userID, id string) error {
	if !isValidID(id) {
		return notFoundError(goalNotFoundMessage)
	}
	if err := s.repo.DeleteForUser(ctx, id, userID); err != nil {
		return s.storeError(err, "Failed to delete goal")
	}

	s.events.emit(ctx, EventGoalDeleted, id, userID)
	return nil
}

// ExportResult identifies a stored goal export. Name is what the owner
// passes back to download or delete it.
type ExportResult struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type goalExport struct {
	UserID     string       `json:"userId"`
	ExportedAt time.Time    `json:"exportedAt"`
	Goals      []types.Goal `json:"goals"`
}

// Export writes a JSON snapshot of the user's goals to the export store.
func (s *GoalService) Export(ctx context.Context, userID string) (ExportResult, error) {
	if s.exports == nil {
		return ExportResult{}, unavailableError("Export is not available")
	}

	goals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return ExportResult{}, internalError("Failed to list goals", err)
	}

	now := s.now().UTC()
	data, err := json.Marshal(goalExport{UserID: userID, ExportedAt: now, Goals: goals})
	if err != nil {
		return ExportResult{}, internalError("Failed to encode export", err)
	}

	name := fmt.Sprintf("%d.json", now.Unix())
	key := exportKey(userID, name)
	if err := s.exports.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return ExportResult{}, internalError("Failed to store export", err)
	}

	s.logger.InfoContext(ctx, "goals exported", "user_id", userID, "key", key, "count", len(goals))
	return ExportResult{Key: key, Name: name, Count: len(goals)}, nil
}

// OpenExport returns the content of one of the user's exports. The caller
// must close the reader.
func (s *GoalService) OpenExport(ctx context.Context, userID, name string) (io.ReadCloser, error) {
	if s.exports == nil {
		return nil, unavailableError("Export is not available")
	}
	if !exportNamePattern.MatchString(name) {
		return nil, notFoundError(exportNotFoundMessage)
	}

	body, err := s.exports.Get(ctx, exportKey(userID, name))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, notFoundError(exportNotFoundMessage)
	}
	if err != nil {
		return nil, internalError("Failed to read export", err)
	}
	return body, nil
}

// DeleteExport removes one of the user's exports. Deleting an export that
// is already gone succeeds.
func (s *GoalService) DeleteExport(ctx context.Context, userID, name string) error {
	if s.exports == nil {
		return unavailableError("Export is not available")
	}
	if !exportNamePattern.MatchString(name) {
		return notFoundError(exportNotFoundMessage)
	}

	key := exportKey(userID, name)
	if err := s.exports.Delete(ctx, key); err != nil {
		return internalError("Failed to delete export", err)
	}
	s.logger.InfoContext(ctx, "export deleted", "user_id", userID, "key", key)
	return nil
}

// exportKey places every export under its owner's prefix, so a name can
// only ever address the caller's own objects.
func exportKey(userID, name string) string {
	return fmt.Sprintf("exports/%s/%s", userID, name)
}

func (s *GoalService) storeError(err error, message string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(goalNotFoundMessage)
	}
	return internalError(message, err)
}
