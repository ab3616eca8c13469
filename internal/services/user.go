package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fitgoals/apiserver/internal/store"
	"github.com/fitgoals/apiserver/types"
)

const invalidCredentialsMessage = "Invalid credentials"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// TokenIssuer mints bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// UserService encapsulates signup, login and account lookups.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	logger *slog.Logger
}

func NewUserService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

// LoginResult is a freshly issued token and the user it belongs to.
type LoginResult struct {
	Token string
	User  types.User
}

// Signup validates the credentials, rejects duplicates and stores a new user
// with a hashed password.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	password := strings.TrimSpace(in.Password)

	errs := fieldErrors{}
	validateUsername(errs, username, true)
	validateEmail(errs, email)
	validatePassword(errs, password)
	if err := errs.err(); err != nil {
		return types.User{}, err
	}

	if _, err := s.repo.FindByUsernameOrEmail(ctx, username, email); err == nil {
		return types.User{}, conflictError("User already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, internalError("Failed to check user", err)
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return types.User{}, internalError("Failed to create user", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, conflictError("User already exists")
		}
		return types.User{}, internalError("Failed to create user", err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues a token. Unknown usernames and
// wrong passwords produce the same error.
func (s *UserService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	password := strings.TrimSpace(in.Password)

	errs := fieldErrors{}
	validateUsername(errs, username, false)
	validatePassword(errs, password)
	if err := errs.err(); err != nil {
		return LoginResult{}, err
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, unauthorizedError(invalidCredentialsMessage)
		}
		return LoginResult{}, internalError("Failed to authenticate", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, internalError("Failed to authenticate", err)
	}
	if !ok {
		return LoginResult{}, unauthorizedError(invalidCredentialsMessage)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, internalError("Failed to create token", err)
	}

	return LoginResult{Token: token, User: user}, nil
}

// GetByID returns the user with id. A missing user is reported as
// unauthorized since ids only arrive here from verified tokens.
func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	if !isValidID(id) {
		return types.User{}, unauthorizedError("User not found")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, unauthorizedError("User not found")
		}
		return types.User{}, internalError("Failed to load user", err)
	}
	return user, nil
}
