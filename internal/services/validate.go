package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fitgoals/apiserver/types"
	"github.com/google/uuid"
)

const (
	minUsernameLen    = 3
	maxUsernameLen    = 30
	minPasswordLen    = 8
	maxPasswordBytes  = 72 // bcrypt input limit
	minGoalNameLen    = 3
	maxGoalNameLen    = 50
	maxDescriptionLen = 200
	maxUnitLen        = 20
	dateOnlyLayout    = "2006-01-02"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// fieldErrors collects per-field validation messages.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return validationError("Validation failed", map[string]string(f))
}

func validateUsername(errs fieldErrors, username string, checkMax bool) {
	n := utf8.RuneCountInString(username)
	switch {
	case n == 0:
		errs.add("username", "Username is required")
	case n < minUsernameLen:
		errs.add("username", fmt.Sprintf("Username must be at least %d characters", minUsernameLen))
	case checkMax && n > maxUsernameLen:
		errs.add("username", fmt.Sprintf("Username must be at most %d characters", maxUsernameLen))
	}
}

func validatePassword(errs fieldErrors, password string) {
	n := utf8.RuneCountInString(password)
	switch {
	case n == 0:
		errs.add("password", "Password is required")
	case n < minPasswordLen:
		errs.add("password", fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	case len(password) > maxPasswordBytes:
		errs.add("password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
}

func validateEmail(errs fieldErrors, email string) {
	switch {
	case email == "":
		errs.add("email", "Email is required")
	case !emailPattern.MatchString(email):
		errs.add("email", "Email is invalid")
	}
}

// isValidID reports whether id has the shape of a stored record id.
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// parseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnlyLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// GoalInput is the client-supplied goal payload for create and update.
type GoalInput struct {
	Name        string
	Description string
	Type        string
	StartDate   string
	EndDate     string
	TargetValue *float64
	Unit        string
	// Progress replaces the stored progress when non-nil.
	Progress []ProgressInput
}

// ProgressInput is a single client-supplied progress measurement.
type ProgressInput struct {
	Date  string
	Value *float64
}

// toGoal validates the input and converts it into a goal owned by userID.
func (in GoalInput) toGoal(userID string) (types.Goal, error) {
	errs := fieldErrors{}

	name := strings.TrimSpace(in.Name)
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		errs.add("name", "Name is required")
	case n < minGoalNameLen:
		errs.add("name", fmt.Sprintf("Name must be at least %d characters", minGoalNameLen))
	case n > maxGoalNameLen:
		errs.add("name", fmt.Sprintf("Name must be at most %d characters", maxGoalNameLen))
	}

	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		errs.add("description", fmt.Sprintf("Description must be at most %d characters", maxDescriptionLen))
	}

	goalType := types.GoalType(strings.TrimSpace(in.Type))
	switch {
	case goalType == "":
		errs.add("type", "Type is required")
	case !goalType.Valid():
		errs.add("type", "Type must be one of weight-loss, muscle-gain, endurance, other")
	}

	start, startErr := parseDate(in.StartDate)
	if strings.TrimSpace(in.StartDate) == "" {
		errs.add("startDate", "Start date is required")
	} else if startErr != nil {
		errs.add("startDate", "Start date is invalid")
	}

	end, endErr := parseDate(in.EndDate)
	if strings.TrimSpace(in.EndDate) == "" {
		errs.add("endDate", "End date is required")
	} else if endErr != nil {
		errs.add("endDate", "End date is invalid")
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		errs.add("endDate", "End date must not be before start date")
	}

	if in.TargetValue == nil {
		errs.add("targetValue", "Target value is required")
	}

	unit := strings.TrimSpace(in.Unit)
	switch {
	case unit == "":
		errs.add("unit", "Unit is required")
	case utf8.RuneCountInString(unit) > maxUnitLen:
		errs.add("unit", fmt.Sprintf("Unit must be at most %d characters", maxUnitLen))
	}

	var progress []types.ProgressEntry
	if in.Progress != nil {
		progress = make([]types.ProgressEntry, 0, len(in.Progress))
		for i, p := range in.Progress {
			entry, fields := p.toEntry()
			for field, msg := range fields {
				errs.add(fmt.Sprintf("progress[%d].%s", i, field), msg)
			}
			progress = append(progress, entry)
		}
	}

	if err := errs.err(); err != nil {
		return types.Goal{}, err
	}

	return types.Goal{
		UserID:      userID,
		Name:        name,
		Description: description,
		Type:        goalType,
		StartDate:   start,
		EndDate:     end,
		TargetValue: *in.TargetValue,
		Unit:        unit,
		Progress:    progress,
	}, nil
}

func (p ProgressInput) toEntry() (types.ProgressEntry, fieldErrors) {
	errs := fieldErrors{}
	date, err := parseDate(p.Date)
	if strings.TrimSpace(p.Date) == "" {
		errs.add("date", "Date is required")
	} else if err != nil {
		errs.add("date", "Date is invalid")
	}
	if p.Value == nil {
		errs.add("value", "Value is required")
		return types.ProgressEntry{Date: date}, errs
	}
	return types.ProgressEntry{Date: date, Value: *p.Value}, errs
}
