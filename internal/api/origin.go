package api

import (
	"fmt"
	"net"
	"strings"
)

// Deployment origins.
const (
	OriginLocal      = "http://localhost:9090"
	OriginProduction = "https://opex.godeepak.com"
	OriginPilot      = "https://pilot-opex.godeepak.com"
)

// PathPrefix is prepended to every endpoint path.
const PathPrefix = "/api"

var origins = map[string]string{
	"local":      OriginLocal,
	"production": OriginProduction,
	"pilot":      OriginPilot,
}

// OriginFor returns the origin of a named environment.
func OriginFor(environment string) (string, error) {
	origin, ok := origins[strings.ToLower(strings.TrimSpace(environment))]
	if !ok {
		return "", fmt.Errorf("api: unknown environment %q", environment)
	}
	return origin, nil
}

// OriginForHost picks the origin the way the web front-end does from its
// hostname: loopback is local, anything mentioning pilot is pilot, the rest
// is production.
func OriginForHost(hostname string) string {
	host := strings.ToLower(strings.TrimSpace(hostname))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	switch {
	case host == "localhost" || host == "127.0.0.1" || host == "::1":
		return OriginLocal
	case strings.Contains(host, "pilot"):
		return OriginPilot
	}
	return OriginProduction
}

// ResolveOrigin applies the override, then the environment.
func ResolveOrigin(override, environment string) (string, error) {
	if override = strings.TrimRight(strings.TrimSpace(override), "/"); override != "" {
		return override, nil
	}
	return OriginFor(environment)
}
