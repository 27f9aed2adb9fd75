package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/dermascan/dermascan/internal/auth"
	"github.com/dermascan/dermascan/internal/metrics"
	"github.com/dermascan/dermascan/internal/model"
	"github.com/dermascan/dermascan/internal/repository"
)

// Credentials is the input to Register and Login.
type Credentials struct {
	Username string `validate:"required,min=3,max=64,username"`
	Password string `validate:"required,min=6,max=128"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// AccountService handles registration, login and session checks.
type AccountService struct {
	repo     *repository.Repository
	tokens   *auth.TokenManager
	hasher   *auth.Hasher
	validate *validator.Validate
	metrics  metrics.Recorder
	logger   *slog.Logger

	// dummyHash is verified against when the username is unknown so that
	// both failure paths cost one argon2 evaluation.
	dummyHash string
}

// NewAccountService creates a new AccountService.
func NewAccountService(
	repo *repository.Repository,
	tokens *auth.TokenManager,
	hasher *auth.Hasher,
	recorder metrics.Recorder,
	logger *slog.Logger,
) (*AccountService, error) {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}

	dummy, err := hasher.Hash("dermascan-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &AccountService{
		repo:      repo,
		tokens:    tokens,
		hasher:    hasher,
		validate:  newValidator(),
		metrics:   recorder,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if unicode.IsSpace(r) || !unicode.IsPrint(r) {
				return false
			}
		}
		return true
	})
	return v
}

// Register creates a new account.
func (s *AccountService) Register(ctx context.Context, in Credentials) (*model.User, error) {
	if err := s.validateCredentials(in); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           ulid.Make().String(),
		Username:     in.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	s.metrics.IncUserRegistered()
	s.logger.Info("user registered", "user_id", user.ID)

	return user, nil
}

// Login verifies a username and password and issues a session token.
// Unknown usernames and wrong passwords return the same error.
func (s *AccountService) Login(ctx context.Context, in Credentials) (*LoginResult, error) {
	if in.Username == "" || in.Password == "" {
		s.metrics.IncLogin(false)
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByUsername(ctx, in.Username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		_, _ = s.hasher.Verify(in.Password, s.dummyHash)
		s.metrics.IncLogin(false)
		s.logger.Warn("login failed", "reason", "unknown_user")
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		s.metrics.IncLogin(false)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.metrics.IncLogin(false)
		s.logger.Warn("login failed", "reason", "wrong_password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.metrics.IncLogin(true)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a session token to a Session. Bad, expired or
// orphaned tokens return ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Debug("session rejected", "reason", err.Error())
		return nil, ErrInvalidCredentials
	}

	if _, err := s.repo.GetUserByID(ctx, session.UserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.logger.Warn("session for missing user", "user_id", session.UserID)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return session, nil
}

func (s *AccountService) validateCredentials(in Credentials) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	case "min":
		return fmt.Errorf("%w: %s must be at least %s characters", ErrValidation, field, fe.Param())
	case "max":
		return fmt.Errorf("%w: %s must be at most %s characters", ErrValidation, field, fe.Param())
	case "username":
		return fmt.Errorf("%w: username must not contain spaces or control characters", ErrValidation)
	default:
		return fmt.Errorf("%w: %s is invalid", ErrValidation, field)
	}
}
