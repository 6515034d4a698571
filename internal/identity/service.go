// Package identity implements user registration, login and token-based identity lookup.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/airq-auth/internal/domain"
	"github.com/bissquit/airq-auth/internal/pkg/apperr"
	"github.com/bissquit/airq-auth/internal/pkg/ctxlog"
	"github.com/bissquit/airq-auth/internal/pkg/metrics"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Repository is the credential store.
type Repository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Authenticator issues and verifies bearer tokens.
type Authenticator interface {
	GenerateToken(ctx context.Context, user *domain.User) (string, error)
	ValidateToken(ctx context.Context, token string) (userID string, role domain.Role, err error)
}

// PasswordHasher hashes and compares passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// UserCreatedHandler is notified after a user has been stored.
type UserCreatedHandler interface {
	OnUserCreated(ctx context.Context, user *domain.User) error
}

// RegisterInput holds registration data.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string
	Password string
}

// AuthResult is returned by successful register and login calls.
type AuthResult struct {
	Token string            `json:"token"`
	User  domain.PublicUser `json:"user"`
}

// Service implements the identity business logic.
type Service struct {
	repo        Repository
	auth        Authenticator
	hasher      PasswordHasher
	userCreated UserCreatedHandler

	newID func() string
	now   func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a new identity service.
// userCreated may be nil.
func NewService(repo Repository, auth Authenticator, hasher PasswordHasher, userCreated UserCreatedHandler) *Service {
	return &Service{
		repo:        repo,
		auth:        auth,
		hasher:      hasher,
		userCreated: userCreated,
		newID:       uuid.NewString,
		now:         time.Now,
	}
}

// Register creates a new user and issues a token for it.
func (s *Service) Register(ctx context.Context, input RegisterInput) (result *AuthResult, err error) {
	defer func() { recordOutcome("register", err) }()

	input, err = NormalizeRegisterInput(input)
	if err != nil {
		return nil, err
	}

	_, err = s.repo.GetUserByEmail(ctx, input.Email)
	switch {
	case err == nil:
		return nil, ErrEmailExists
	case !errors.Is(err, ErrUserNotFound):
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           s.newID(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The store's unique index reports ErrEmailExists if another request won the race.
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.userCreated != nil {
		if hookErr := s.userCreated.OnUserCreated(ctx, user); hookErr != nil {
			ctxlog.FromContext(ctx).Warn("user created handler failed", "user_id", user.ID, "error", hookErr)
		}
	}

	token, err := s.auth.GenerateToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResult{Token: token, User: user.Public()}, nil
}

// Login verifies credentials and issues a token.
// Unknown email and wrong password are reported identically.
func (s *Service) Login(ctx context.Context, input LoginInput) (result *AuthResult, err error) {
	defer func() { recordOutcome("login", err) }()

	if input.Email == "" || input.Password == "" {
		return nil, apperr.New(apperr.KindValidation, MsgMissingCredentials)
	}

	user, err := s.repo.GetUserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Spend the same bcrypt work as a real comparison.
			s.hasher.Compare(s.dummyPasswordHash(), input.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	if !s.hasher.Compare(user.PasswordHash, input.Password) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.auth.GenerateToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	return &AuthResult{Token: token, User: user.Public()}, nil
}

// GetCurrentUser returns the public projection of an already authenticated user.
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*domain.PublicUser, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}

	public := user.Public()
	return &public, nil
}

// ValidateToken validates a bearer token and returns the identity it carries.
func (s *Service) ValidateToken(ctx context.Context, token string) (string, domain.Role, error) {
	return s.auth.ValidateToken(ctx, token)
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// NormalizeRegisterInput trims display names and rejects blank required fields.
func NormalizeRegisterInput(input RegisterInput) (RegisterInput, error) {
	input.FirstName = norm.NFC.String(strings.TrimSpace(input.FirstName))
	input.LastName = norm.NFC.String(strings.TrimSpace(input.LastName))

	var details []apperr.FieldError
	if input.FirstName == "" {
		details = append(details, apperr.FieldError{Field: "firstName", Message: "required"})
	}
	if input.LastName == "" {
		details = append(details, apperr.FieldError{Field: "lastName", Message: "required"})
	}
	if input.Email == "" {
		details = append(details, apperr.FieldError{Field: "email", Message: "required"})
	}
	switch {
	case input.Password == "":
		details = append(details, apperr.FieldError{Field: "password", Message: "required"})
	case len(input.Password) > MaxPasswordBytes:
		details = append(details, apperr.FieldError{Field: "password", Message: "max"})
	}
	if len(details) > 0 {
		return RegisterInput{}, apperr.Validation(MsgValidation, details)
	}

	return input, nil
}

func recordOutcome(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	metrics.AuthOperations.WithLabelValues(operation, outcome).Inc()
}
