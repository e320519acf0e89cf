package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/kingrea/opex/internal/domain"
)

func signed(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

var lead = domain.User{ID: 42, Email: "lead@plant.test", FullName: "Ines Lead", Role: domain.RoleInitiativeLead, Site: "Plant A", Discipline: "Process"}

func TestSaveWritesPrivateTokenFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state", "token"))
	token := signed(t, NewClaims(lead, time.Now(), time.Hour))
	if err := store.Save(token, lead); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat token: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 token file, got %v", info.Mode().Perm())
	}
	reopened := NewStore(store.Path())
	if reopened.Token() != token {
		t.Fatalf("expected token to survive reopen")
	}
}

func TestIdentityMergesClaimsAndProfile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token"))
	if err := store.Save(signed(t, NewClaims(lead, time.Now(), time.Hour)), lead); err != nil {
		t.Fatalf("save: %v", err)
	}
	identity, err := store.Identity()
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if identity.User != lead {
		t.Fatalf("unexpected identity %+v", identity.User)
	}
}

func TestExpiredTokenIsAbsent(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token"))
	issued := time.Now().Add(-2 * time.Hour)
	if err := store.Save(signed(t, NewClaims(lead, issued, time.Hour)), lead); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.Token() != "" {
		t.Fatalf("expected expired token to be hidden")
	}
	if _, err := store.Identity(); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestClearRemovesFiles(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "token"))
	if err := store.Save(signed(t, NewClaims(lead, time.Now(), time.Hour)), lead); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.Token() != "" {
		t.Fatalf("expected no token after clear")
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected token file removed, got %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("second clear should be a no-op: %v", err)
	}
}

func TestParseTokenNumericSubject(t *testing.T) {
	claims := Claims{Role: "sh", RegisteredClaims: jwt.RegisteredClaims{Subject: "7"}}
	identity, err := ParseToken(signed(t, claims))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if identity.User.ID != 7 || identity.User.Role != domain.RoleSiteHead {
		t.Fatalf("unexpected identity %+v", identity.User)
	}
	if identity.Expired(time.Now()) {
		t.Fatalf("token without exp never expires")
	}
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	if _, err := ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected parse error")
	}
}
