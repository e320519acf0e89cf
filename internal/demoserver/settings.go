package demoserver

import (
	"net"
	"strings"
	"time"

	"github.com/kingrea/opex/internal/config"
)

const (
	// DefaultAddr binds loopback on a free port.
	DefaultAddr = "127.0.0.1:0"
	// DefaultSecret signs demo tokens. The demo server is loopback only.
	DefaultSecret = "opex-demo-secret"
	// DefaultPassword is accepted for every seeded user.
	DefaultPassword = "demo"
	// DefaultTokenTTL bounds demo sessions.
	DefaultTokenTTL = 12 * time.Hour
	// DefaultMaxUploadBytes caps one multipart upload request.
	DefaultMaxUploadBytes int64 = 32 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes.
	DefaultWriteTimeout = 15 * time.Second
	// DefaultIdleTimeout bounds keep-alive connections.
	DefaultIdleTimeout = 60 * time.Second
)

// Settings captures runtime configuration for the demo backend.
type Settings struct {
	Addr           string
	Secret         string
	Password       string
	TokenTTL       time.Duration
	StatePath      string
	MaxUploadBytes int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// SettingsFromConfig builds Settings from the loaded configuration. State is
// only persisted when demo.persist is set.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{}
	if cfg != nil {
		settings.Addr = cfg.File.Demo.Addr
		if cfg.File.Demo.Persist {
			settings.StatePath = cfg.DemoStatePath()
		}
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	if s == nil {
		return
	}
	s.Addr = strings.TrimSpace(s.Addr)
	if s.Addr == "" {
		s.Addr = DefaultAddr
	}
	if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		s.Addr = DefaultAddr
	}
	if s.Secret == "" {
		s.Secret = DefaultSecret
	}
	if s.Password == "" {
		s.Password = DefaultPassword
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = DefaultTokenTTL
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}
