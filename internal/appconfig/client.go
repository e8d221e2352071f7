package appconfig

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

const (
	moduleName    = "datamigrations/appconfig"
	moduleVersion = "v1.0.0"

	defaultTimeout = 30 * time.Second
)

// Options tunes client construction. The zero value is usable.
type Options struct {
	// ClientOptions is passed to the Azure pipeline of either variant. Retry,
	// Transport and Logging policies are honored.
	ClientOptions policy.ClientOptions
	// HTTPClient is used by the emulator variant when ClientOptions.Transport is nil.
	HTTPClient *http.Client
	// Timeout bounds each emulator request. Defaults to 30s.
	Timeout time.Duration
	// Credential overrides the ambient credential for remote URI targets.
	Credential azcore.TokenCredential
}

// New builds the variant selected by t.
func New(t Target, opts *Options) (Client, error) {
	if opts == nil {
		opts = &Options{}
	}
	if t.Endpoint == nil {
		return nil, fmt.Errorf("%w: target has no endpoint", ErrConfiguration)
	}
	switch t.Kind {
	case KindEmulator:
		return NewEmulatorClient(t.Endpoint, opts)
	case KindRemote:
		return NewRemoteClient(t, opts)
	default:
		return nil, fmt.Errorf("%w: unknown client kind %d", ErrConfiguration, t.Kind)
	}
}

// NewFromConnection parses raw and builds the matching variant.
func NewFromConnection(raw string, opts *Options) (Client, Target, error) {
	t, err := ParseTarget(raw)
	if err != nil {
		return nil, Target{}, err
	}
	c, err := New(t, opts)
	if err != nil {
		return nil, t, err
	}
	return c, t, nil
}

// classify maps service responses onto the package sentinels. conflict is the
// sentinel a 412 means for the calling operation.
func classify(op string, err error, conflict error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
		case http.StatusPreconditionFailed:
			if conflict != nil {
				return fmt.Errorf("%s: %w: %w", op, conflict, err)
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
