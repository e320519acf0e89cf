// Package session keeps the bearer token and the signed-in user between runs.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/kingrea/opex/internal/domain"
)

// ErrNoSession means no usable token is stored.
var ErrNoSession = errors.New("session: not signed in")

// Claims are the JWT claims the backend issues. The client reads them
// without verifying the signature; the backend enforces it.
type Claims struct {
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
	Site   string `json:"site,omitempty"`
	UserID int64  `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims builds claims for user valid for ttl.
func NewClaims(user domain.User, now time.Time, ttl time.Duration) Claims {
	return Claims{
		Email:  user.Email,
		Name:   user.FullName,
		Role:   string(user.Role),
		Site:   user.Site,
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// Identity is who the stored token belongs to.
type Identity struct {
	User      domain.User
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// ParseToken decodes the claims of token without checking its signature.
func ParseToken(token string) (Identity, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("session: parse token: %w", err)
	}
	user := domain.User{
		ID:       claims.UserID,
		Email:    claims.Email,
		FullName: claims.Name,
		Role:     domain.ParseRole(claims.Role),
		Site:     claims.Site,
	}
	if user.Email == "" && strings.Contains(claims.Subject, "@") {
		user.Email = claims.Subject
	}
	if user.ID == 0 {
		if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			user.ID = id
		}
	}
	identity := Identity{User: user}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Store persists the token in a 0600 file and the profile next to it.
type Store struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	token  string
	loaded bool
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the token file.
func (s *Store) Path() string { return s.path }

func (s *Store) profilePath() string {
	return filepath.Join(filepath.Dir(s.path), "profile.json")
}

// Token returns the stored token, or "" when none is stored or it expired.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		data, err := os.ReadFile(s.path)
		if err == nil {
			s.token = strings.TrimSpace(string(data))
		}
		s.loaded = true
	}
	if s.token == "" {
		return ""
	}
	if identity, err := ParseToken(s.token); err == nil && identity.Expired(s.now()) {
		return ""
	}
	return s.token
}

// Save stores token and the profile of the user it was issued to.
func (s *Store) Save(token string, user domain.User) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("session: token is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("session: write token: %w", err)
	}
	profile, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode profile: %w", err)
	}
	if err := os.WriteFile(s.profilePath(), profile, 0o600); err != nil {
		return fmt.Errorf("session: write profile: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Clear forgets the token and profile.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.token = ""
	s.loaded = true
	s.mu.Unlock()
	for _, path := range []string{s.path, s.profilePath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session: clear: %w", err)
		}
	}
	return nil
}

// Identity returns the signed-in user. Claims win; the saved profile fills
// the fields the token does not carry.
func (s *Store) Identity() (Identity, error) {
	token := s.Token()
	if token == "" {
		return Identity{}, ErrNoSession
	}
	identity, err := ParseToken(token)
	if err != nil {
		return Identity{}, err
	}
	var profile domain.User
	if data, err := os.ReadFile(s.profilePath()); err == nil {
		_ = json.Unmarshal(data, &profile)
	}
	identity.User = merge(identity.User, profile)
	return identity, nil
}

func merge(claims, profile domain.User) domain.User {
	if claims.ID == 0 {
		claims.ID = profile.ID
	}
	if claims.Email == "" {
		claims.Email = profile.Email
	}
	if claims.FullName == "" {
		claims.FullName = profile.FullName
	}
	if claims.Role == "" {
		claims.Role = profile.Role
	}
	if claims.Site == "" {
		claims.Site = profile.Site
	}
	if claims.Discipline == "" {
		claims.Discipline = profile.Discipline
	}
	return claims
}
