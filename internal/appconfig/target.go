package appconfig

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind selects the client variant.
type Kind int

const (
	// KindRemote talks to Azure App Configuration through the Azure SDK.
	KindRemote Kind = iota
	// KindEmulator talks to the local emulator over its REST dialect.
	KindEmulator
)

func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindEmulator:
		return "emulator"
	default:
		return "unknown"
	}
}

// Target is a parsed connection target.
type Target struct {
	Kind Kind
	// Endpoint is the store base URI.
	Endpoint *url.URL
	// ConnectionString is the raw connection string. Empty when the target was
	// given as a bare endpoint URI.
	ConnectionString string
	// AmbientCredential selects azidentity's default credential chain instead of
	// connection-string HMAC auth. Only meaningful for KindRemote.
	AmbientCredential bool
}

// String describes the target without leaking the connection secret.
func (t Target) String() string {
	auth := "connection-string"
	switch {
	case t.Kind == KindEmulator:
		auth = "anonymous"
	case t.AmbientCredential:
		auth = "ambient-credential"
	}
	endpoint := ""
	if t.Endpoint != nil {
		endpoint = t.Endpoint.String()
	}
	return fmt.Sprintf("%s %s (%s)", t.Kind, endpoint, auth)
}

// ParseTarget decides which variant serves raw.
//
// An absolute http(s) URI is used as the endpoint directly. Anything else must
// be a connection string carrying Endpoint=<absolute URI>. Loopback endpoints
// select the emulator, bare URIs select the remote client with the ambient
// credential, and connection strings select the remote client with HMAC auth.
func ParseTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: connection target is empty", ErrConfiguration)
	}

	if u, ok := parseHTTPURI(raw); ok {
		t := Target{Kind: KindRemote, Endpoint: u, AmbientCredential: true}
		if isLoopback(u.Hostname()) {
			t.Kind = KindEmulator
			t.AmbientCredential = false
		}
		return t, nil
	}

	cs, err := ParseConnectionString(raw)
	if err != nil {
		return Target{}, err
	}
	t := Target{Kind: KindRemote, Endpoint: cs.Endpoint, ConnectionString: raw}
	if isLoopback(cs.Endpoint.Hostname()) {
		t.Kind = KindEmulator
	}
	return t, nil
}

// ConnectionString is a parsed "Endpoint=...;Id=...;Secret=..." value.
type ConnectionString struct {
	Endpoint *url.URL
	ID       string
	Secret   string
}

// ParseConnectionString splits a semicolon separated Key=Value list. Keys are
// matched case-insensitively. Endpoint is required and must be absolute.
func ParseConnectionString(raw string) (ConnectionString, error) {
	var (
		cs          ConnectionString
		endpointRaw string
		hasEndpoint bool
	)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "endpoint":
			endpointRaw, hasEndpoint = strings.TrimSpace(value), true
		case "id":
			cs.ID = strings.TrimSpace(value)
		case "secret":
			cs.Secret = strings.TrimSpace(value)
		}
	}

	if !hasEndpoint {
		return ConnectionString{}, fmt.Errorf("%w: connection string does not contain an Endpoint", ErrConfiguration)
	}
	u, err := url.Parse(endpointRaw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ConnectionString{}, fmt.Errorf("%w: invalid Endpoint URI in connection string: %q", ErrConfiguration, endpointRaw)
	}
	cs.Endpoint = u
	return cs, nil
}

func parseHTTPURI(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, true
	default:
		return nil, false
	}
}

func isLoopback(host string) bool {
	return strings.EqualFold(host, "localhost") || strings.EqualFold(host, "127.0.0.1")
}
