package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/lib/pq"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("query: %w", driver.ErrBadConn), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"connection exception", &pq.Error{Code: "08006"}, true},
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"admin shutdown", &pq.Error{Code: "57P01"}, true},
		{"cannot connect now", &pq.Error{Code: "57P03"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("insert: %w", &pq.Error{Code: "40P01"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"syntax error", &pq.Error{Code: "42601"}, false},
		{"query canceled", &pq.Error{Code: "57014"}, false},
		{"net timeout", errTransient, true},
		{"dial refused", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, true},
		{"read reset", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}, false},
		{"canceled", context.Canceled, false},
		{"attempt deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func expiredDial(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", "127.0.0.1:9")
	if err == nil {
		conn.Close()
		t.Fatal("expected dial to fail with an expired deadline")
	}
	return err
}

func TestIsTransient_RealDialTimeout(t *testing.T) {
	err := expiredDial(t)
	if !IsTransient(err) {
		t.Fatalf("IsTransient(%v (%T)) = false, want true", err, err)
	}
	if !IsTransient(fmt.Errorf("ping database: %w", err)) {
		t.Fatalf("wrapped dial timeout not transient")
	}
}

func TestRetryPolicy_RetriesPerAttemptTimeout(t *testing.T) {
	attempts := 0
	err := fastPolicy(4).Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		<-attemptCtx.Done()
		var d net.Dialer
		conn, err := d.DialContext(attemptCtx, "tcp", "127.0.0.1:9")
		if err == nil {
			conn.Close()
		}
		return err
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}
}

func TestRetryPolicy_CallerDeadlineStopsRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	attempts := 0
	err := fastPolicy(4).Execute(ctx, func(ctx context.Context) error {
		attempts++
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0", attempts)
	}
}
