package appconfig

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

type staticCredential struct{}

func (staticCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: "token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

func TestNew_RoutesByKind(t *testing.T) {
	emu, _, err := NewFromConnection("Endpoint=http://localhost:8483;Id=anonymous;Secret=abc", nil)
	if err != nil {
		t.Fatalf("emulator: %v", err)
	}
	if _, ok := emu.(*EmulatorClient); !ok {
		t.Fatalf("expected *EmulatorClient, got %T", emu)
	}

	remote, target, err := NewFromConnection("https://cfg.example.com", &Options{Credential: staticCredential{}})
	if err != nil {
		t.Fatalf("remote: %v", err)
	}
	if _, ok := remote.(*RemoteClient); !ok {
		t.Fatalf("expected *RemoteClient, got %T", remote)
	}
	if !target.AmbientCredential {
		t.Fatal("URI target should use the ambient credential")
	}

	byKey, _, err := NewFromConnection("Endpoint=https://cfg.azconfig.io;Id=abc-1;Secret=c2VjcmV0", nil)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if _, ok := byKey.(*RemoteClient); !ok {
		t.Fatalf("expected *RemoteClient, got %T", byKey)
	}
}

func TestNew_RejectsIncompleteTargets(t *testing.T) {
	if _, err := New(Target{Kind: KindEmulator}, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("missing endpoint: err = %v", err)
	}
	target, err := ParseTarget("https://cfg.example.com")
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	target.AmbientCredential = false
	if _, err := New(target, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("remote without secret: err = %v", err)
	}
	target.Kind = Kind(42)
	if _, err := New(target, nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("unknown kind: err = %v", err)
	}
	if _, _, err := NewFromConnection("", nil); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("empty connection: err = %v", err)
	}
}

func TestClassify(t *testing.T) {
	notFound := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	conflict := &azcore.ResponseError{StatusCode: http.StatusPreconditionFailed}
	other := &azcore.ResponseError{StatusCode: http.StatusInternalServerError}

	if classify("op", nil, nil) != nil {
		t.Fatal("nil error should stay nil")
	}
	if err := classify("get k", notFound, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("404: %v", err)
	}
	if err := classify("add k", conflict, ErrAlreadyExists); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("412 on add: %v", err)
	}
	if err := classify("set k", conflict, ErrPreconditionFailed); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("412 on set: %v", err)
	}
	err := classify("get k", conflict, nil)
	if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("412 without a conflict sentinel must stay generic: %v", err)
	}
	err = classify("list", other, nil)
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("response error not preserved: %v", err)
	}
	if err := classify("x", fmt.Errorf("dial: %w", context.DeadlineExceeded), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("transport error not preserved: %v", err)
	}
}

func TestQuoteETag(t *testing.T) {
	cases := map[string]string{
		"abc":     `"abc"`,
		`"abc"`:   `"abc"`,
		`W/"abc"`: `W/"abc"`,
		"*":       "*",
	}
	for in, want := range cases {
		if got := quoteETag(in); got != want {
			t.Errorf("quoteETag(%q) = %q, want %q", in, got, want)
		}
	}
}
