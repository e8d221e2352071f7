// Package appconfig is a small key/value client for Azure App Configuration and
// its local emulator.
package appconfig

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
)

var (
	// ErrConfiguration reports a missing or malformed connection target.
	ErrConfiguration = errors.New("appconfig: invalid configuration")
	// ErrNotFound reports that no setting exists for the requested key and label.
	ErrNotFound = errors.New("appconfig: setting not found")
	// ErrAlreadyExists reports that Add lost to an existing (key, label).
	ErrAlreadyExists = errors.New("appconfig: setting already exists")
	// ErrPreconditionFailed reports a conditional Set whose etag is stale or
	// missing.
	ErrPreconditionFailed = errors.New("appconfig: precondition failed")
)

// Setting is one labeled key-value pair. (Key, Label) identifies it.
type Setting struct {
	Key         string
	Value       string
	Label       string
	ContentType string
	Tags        map[string]string
	// ETag is the opaque version token returned by the store.
	ETag string

	LastModified time.Time
	Locked       bool
}

// Client is the capability set the worker and the API service need.
type Client interface {
	// List yields settings matching both filters. Empty filters match everything.
	// The sequence fetches lazily and cannot be restarted once consumed.
	List(ctx context.Context, keyFilter, labelFilter string) iter.Seq2[Setting, error]
	// Get returns ErrNotFound when (key, label) is absent.
	Get(ctx context.Context, key, label string) (Setting, error)
	// Set upserts s. With onlyIfUnchanged the write only happens when s.ETag
	// still matches the stored etag, otherwise ErrPreconditionFailed. An empty
	// s.ETag with onlyIfUnchanged is rejected before any request is made.
	Set(ctx context.Context, s Setting, onlyIfUnchanged bool) (Setting, error)
	// Add creates s and fails with ErrAlreadyExists if (key, label) is taken.
	Add(ctx context.Context, s Setting) (Setting, error)
	// Delete removes (key, label). Deleting an absent setting succeeds.
	Delete(ctx context.Context, key, label string) error
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Setting, error]) ([]Setting, error) {
	var out []Setting
	for s, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// CheckConditional rejects a conditional write that has no etag to compare.
func CheckConditional(s Setting, onlyIfUnchanged bool) error {
	if onlyIfUnchanged && s.ETag == "" {
		return fmt.Errorf("set %s: %w: etag is required for a conditional write", s.Key, ErrPreconditionFailed)
	}
	return nil
}

// MatchFilter reports whether value satisfies an App Configuration filter.
// "*" or "" match anything, a trailing "*" is a prefix match, commas separate
// alternatives and "\0" matches the empty (null) label.
func MatchFilter(filter, value string) bool {
	if filter == "" || filter == "*" {
		return true
	}
	for _, alt := range splitFilter(filter) {
		switch {
		case alt == `\0`:
			if value == "" {
				return true
			}
		case strings.HasSuffix(alt, "*") && !strings.HasSuffix(alt, `\*`):
			if strings.HasPrefix(value, unescapeFilter(strings.TrimSuffix(alt, "*"))) {
				return true
			}
		default:
			if unescapeFilter(alt) == value {
				return true
			}
		}
	}
	return false
}

// splitFilter splits on commas that are not escaped with a backslash. Escapes
// are kept so the caller can still tell `\*` from a wildcard.
func splitFilter(filter string) []string {
	var (
		parts []string
		start int
	)
	for i := 0; i < len(filter); i++ {
		switch filter[i] {
		case '\\':
			i++
		case ',':
			parts = append(parts, filter[start:i])
			start = i + 1
		}
	}
	return append(parts, filter[start:])
}

func unescapeFilter(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+1 < len(v) {
			i++
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func cloneTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
