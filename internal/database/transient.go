package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"
)

// IsTransient reports whether err is a failure that a fresh attempt on a new
// connection may not hit again. Cancellation is never transient. A deadline
// is, since it can only come from a per-attempt timeout: RetryPolicy stops on
// its own once the caller's context is done.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isTransientCode(pqErr.Code)
	}

	// Covers dial and read timeouts as well as context.DeadlineExceeded.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// The database may still be starting when the worker comes up.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

func isTransientCode(code pq.ErrorCode) bool {
	switch code.Class() {
	case "08", "53":
		return true
	}
	switch code {
	case "57P01", "57P02", "57P03", "40001", "40P01":
		return true
	}
	return false
}
