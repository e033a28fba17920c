// Package users implements registration, login, profile retrieval, and the
// passcode verification flow.
package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
	"github.com/dhaarna97/BookSwap/internal/auth"
	"github.com/dhaarna97/BookSwap/internal/auth/otp"
	"github.com/dhaarna97/BookSwap/internal/domain/user"
	"github.com/dhaarna97/BookSwap/internal/storage"
	"github.com/dhaarna97/BookSwap/pkg/logger"
)

// Service manages user accounts.
type Service struct {
	store  storage.UserStore
	tokens *auth.TokenManager
	otp    otp.Cache
	log    *logger.Logger
}

// New constructs the users service. The otp cache may be nil when the
// passcode flow is disabled.
func New(store storage.UserStore, tokens *auth.TokenManager, otpCache otp.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, tokens: tokens, otp: otpCache, log: log}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	Avatar          string
}

// LoginResult carries the authenticated user and their bearer token.
type LoginResult struct {
	User  user.User `json:"user"`
	Token string    `json:"token"`
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, input RegisterInput) (user.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))

	if input.Name == "" {
		return user.User{}, apperrors.Validation("name is required")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return user.User{}, apperrors.Validation("a valid email is required")
	}
	if input.Password == "" {
		return user.User{}, apperrors.Validation("password is required")
	}
	if input.Password != input.ConfirmPassword {
		return user.User{}, apperrors.Validation("passwords do not match")
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return user.User{}, fmt.Errorf("register: %w", err)
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Avatar:       input.Avatar,
	})
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return user.User{}, apperrors.Validation("user with this email already exists")
	}
	if err != nil {
		return user.User{}, fmt.Errorf("create user: %w", err)
	}

	s.log.WithField("user_id", created.ID).Info("user registered")
	created.PasswordHash = ""
	return created, nil
}

// Login checks credentials and mints a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{}, apperrors.Validation("email and password are required")
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return LoginResult{}, apperrors.Unauthorized("invalid credentials")
	}
	if err != nil {
		return LoginResult{}, fmt.Errorf("lookup user: %w", err)
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		return LoginResult{}, apperrors.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.Sign(u.ID, u.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	s.log.WithField("user_id", u.ID).Info("user logged in")
	u.PasswordHash = ""
	return LoginResult{User: u, Token: token}, nil
}

// Profile returns the caller's own account.
func (s *Service) Profile(ctx context.Context, userID string) (user.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.NotFound("user not found")
	}
	if err != nil {
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	u.PasswordHash = ""
	return u, nil
}

// RequestOTP generates a six digit passcode for the email and stores it with
// a bounded lifetime. Without a mail integration the code is written to the
// service log.
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	if s.otp == nil {
		return apperrors.Validation("passcode verification is not enabled")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return apperrors.Validation("email is required")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("user not found")
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate passcode: %w", err)
	}
	if err := s.otp.Put(ctx, email, code, otp.DefaultTTL); err != nil {
		return fmt.Errorf("store passcode: %w", err)
	}

	// TODO: deliver by email once a mailer is wired up.
	s.log.WithField("email", email).WithField("code", code).Info("passcode issued")
	return nil
}

// VerifyOTP checks and consumes the passcode for the email.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	if s.otp == nil {
		return apperrors.Validation("passcode verification is not enabled")
	}
	email = strings.TrimSpace(strings.ToLower(email))

	stored, ok, err := s.otp.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("load passcode: %w", err)
	}
	if !ok {
		return apperrors.Validation("passcode expired or invalid")
	}
	if stored != code {
		return apperrors.Validation("invalid passcode")
	}

	if err := s.otp.Delete(ctx, email); err != nil {
		return fmt.Errorf("consume passcode: %w", err)
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
