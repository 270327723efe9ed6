package services

import (
	"context"
	"testing"

	"github.com/yungbote/docscan-backend/internal/pkg/logger"
)

func newAuthFixture(t *testing.T) (AuthService, *fakeUserRepo) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	users := newFakeUserRepo()
	svc, err := NewAuthService(log, users)
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc, users
}

func TestAuthenticateCreatesUserLazily(t *testing.T) {
	svc, users := newAuthFixture(t)
	ctx := context.Background()

	user, fresh, err := svc.Authenticate(ctx, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if fresh == "" {
		t.Fatalf("missing token must yield a fresh one")
	}
	if _, err := users.GetByID(ctx, nil, user.ID); err != nil {
		t.Fatalf("user not persisted: %v", err)
	}

	// The issued token resolves to the same user without a reissue.
	again, fresh2, err := svc.Authenticate(ctx, fresh)
	if err != nil {
		t.Fatalf("Authenticate round trip: %v", err)
	}
	if fresh2 != "" {
		t.Fatalf("valid token must not be reissued")
	}
	if again.ID != user.ID {
		t.Fatalf("token resolved to %s, want %s", again.ID, user.ID)
	}
}

func TestAuthenticateReplacesGarbageToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	user, fresh, err := svc.Authenticate(context.Background(), "not-a-jwt")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if fresh == "" || user == nil {
		t.Fatalf("garbage token must produce a new identity")
	}
}

func TestAuthenticateReplacesForeignSignature(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, fresh, err := svc.Authenticate(ctx, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Same token against a service with a different secret must not validate.
	t.Setenv("JWT_SECRET", "other-secret")
	log, _ := logger.New("test")
	other, err := NewAuthService(log, newFakeUserRepo())
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	_, reissued, err := other.Authenticate(ctx, fresh)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if reissued == "" {
		t.Fatalf("foreign-signed token must be replaced")
	}
}
