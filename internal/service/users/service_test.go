package users

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dhaarna97/BookSwap/internal/apperrors"
	"github.com/dhaarna97/BookSwap/internal/auth"
	"github.com/dhaarna97/BookSwap/internal/auth/otp"
	"github.com/dhaarna97/BookSwap/internal/storage/memory"
	"github.com/dhaarna97/BookSwap/pkg/logger"
)

func newService(t *testing.T) *Service {
	t.Helper()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return New(memory.New(), tokens, otp.NewMemoryCache(), logger.NewDefault("users-test"))
}

func register(t *testing.T, svc *Service, email string) {
	t.Helper()
	_, err := svc.Register(context.Background(), RegisterInput{
		Name:            "Alice",
		Email:           email,
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input RegisterInput
	}{
		{"missing name", RegisterInput{Email: "a@b.c", Password: "x", ConfirmPassword: "x"}},
		{"missing email", RegisterInput{Name: "A", Password: "x", ConfirmPassword: "x"}},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "x", ConfirmPassword: "x"}},
		{"missing password", RegisterInput{Name: "A", Email: "a@b.c"}},
		{"password mismatch", RegisterInput{Name: "A", Email: "a@b.c", Password: "x", ConfirmPassword: "y"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.input); apperrors.KindOf(err) != apperrors.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newService(t)
	register(t, svc, "alice@example.com")

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:            "Other Alice",
		Email:           "Alice@Example.com",
		Password:        "pw",
		ConfirmPassword: "pw",
	})
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error for duplicate email, got %v", err)
	}
}

func TestRegisterNeverReturnsHash(t *testing.T) {
	svc := newService(t)
	created, err := svc.Register(context.Background(), RegisterInput{
		Name:            "Alice",
		Email:           "alice@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if created.PasswordHash != "" {
		t.Fatal("password hash leaked in register response")
	}
}

func TestLogin(t *testing.T) {
	svc := newService(t)
	register(t, svc, "alice@example.com")
	ctx := context.Background()

	t.Run("success mints bearer token", func(t *testing.T) {
		result, err := svc.Login(ctx, "alice@example.com", "hunter22")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if !strings.HasPrefix(result.Token, "Bearer ") {
			t.Fatalf("token not bearer-prefixed: %q", result.Token)
		}
		if result.User.PasswordHash != "" {
			t.Fatal("password hash leaked in login response")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.Login(ctx, "alice@example.com", "nope"); apperrors.KindOf(err) != apperrors.KindUnauthorized {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})

	t.Run("unknown email gets the same error as wrong password", func(t *testing.T) {
		_, wrongPw := svc.Login(ctx, "alice@example.com", "nope")
		_, unknown := svc.Login(ctx, "ghost@example.com", "nope")
		if apperrors.MessageOf(wrongPw) != apperrors.MessageOf(unknown) {
			t.Fatalf("login errors leak account existence: %q vs %q",
				apperrors.MessageOf(wrongPw), apperrors.MessageOf(unknown))
		}
	})
}

func TestProfile(t *testing.T) {
	svc := newService(t)
	created, err := svc.Register(context.Background(), RegisterInput{
		Name:            "Alice",
		Email:           "alice@example.com",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	profile, err := svc.Profile(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Email != "alice@example.com" || profile.PasswordHash != "" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := svc.Profile(context.Background(), "missing"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOTPRoundTrip(t *testing.T) {
	store := memory.New()
	cache := otp.NewMemoryCache()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	svc := New(store, tokens, cache, logger.NewDefault("users-test"))
	ctx := context.Background()

	register(t, svc, "alice@example.com")

	if err := svc.RequestOTP(ctx, "ghost@example.com"); apperrors.KindOf(err) != apperrors.KindNotFound {
		t.Fatalf("expected not found for unknown email, got %v", err)
	}

	if err := svc.RequestOTP(ctx, "alice@example.com"); err != nil {
		t.Fatalf("request otp: %v", err)
	}

	code, ok, err := cache.Get(ctx, "alice@example.com")
	if err != nil || !ok {
		t.Fatalf("code not stored: ok=%v err=%v", ok, err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	if err := svc.VerifyOTP(ctx, "alice@example.com", wrong); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected validation error for wrong code, got %v", err)
	}

	if err := svc.VerifyOTP(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("verify otp: %v", err)
	}

	// Codes are single use.
	if err := svc.VerifyOTP(ctx, "alice@example.com", code); apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("expected consumed code to fail, got %v", err)
	}
}
