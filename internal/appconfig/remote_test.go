package appconfig

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// remoteAPIVersion is the api-version the Azure SDK client sends.
const remoteAPIVersion = "2023-10-01"

func newRemoteFake(t *testing.T) *fakeEmulator {
	fake := newFakeEmulator(t)
	fake.apiVersion = remoteAPIVersion
	fake.kvContentType = ""
	fake.createdStatus = http.StatusOK
	fake.missingDelete = http.StatusNotFound
	return fake
}

func newTestRemoteClient(t *testing.T, fake *fakeEmulator) *RemoteClient {
	t.Helper()
	srv := httptest.NewTLSServer(fake)
	t.Cleanup(srv.Close)

	endpoint, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	target := Target{Kind: KindRemote, Endpoint: endpoint, AmbientCredential: true}
	c, err := NewRemoteClient(target, &Options{
		Credential: staticCredential{},
		ClientOptions: policy.ClientOptions{
			Transport: srv.Client(),
			Retry:     policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		t.Fatalf("NewRemoteClient: %v", err)
	}
	return c
}

func TestRemoteClient_AddTwiceFailsWithAlreadyExists(t *testing.T) {
	fake := newRemoteFake(t)
	c := newTestRemoteClient(t, fake)
	ctx := context.Background()

	added, err := c.Add(ctx, Setting{Key: "TestKey", Value: "v1", Label: "AzdPipelines"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ETag == "" || added.Label != "AzdPipelines" {
		t.Fatalf("unexpected setting %+v", added)
	}
	if fake.lastAuth != "Bearer token" {
		t.Fatalf("Authorization = %q", fake.lastAuth)
	}

	_, err = c.Add(ctx, Setting{Key: "TestKey", Value: "v2", Label: "AzdPipelines"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second Add: err = %v, want ErrAlreadyExists", err)
	}

	got, err := c.Get(ctx, "TestKey", "AzdPipelines")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "v1" {
		t.Fatalf("value = %q, want v1", got.Value)
	}
}

func TestRemoteClient_SetWithStaleETag(t *testing.T) {
	fake := newRemoteFake(t)
	c := newTestRemoteClient(t, fake)
	ctx := context.Background()

	first, err := c.Set(ctx, Setting{Key: "K", Value: "one"}, false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	second, err := c.Set(ctx, Setting{Key: "K", Value: "two", ETag: first.ETag}, true)
	if err != nil {
		t.Fatalf("conditional Set with fresh etag: %v", err)
	}

	if _, err := c.Set(ctx, Setting{Key: "K", Value: "three", ETag: first.ETag}, true); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("Set with stale etag: err = %v, want ErrPreconditionFailed", err)
	}
	if _, err := c.Set(ctx, Setting{Key: "K", Value: "four"}, true); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("Set without etag: err = %v, want ErrPreconditionFailed", err)
	}

	got, err := c.Get(ctx, "K", "")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "two" || got.ETag != second.ETag {
		t.Fatalf("stored setting changed: %+v", got)
	}
	if fake.writes != 2 {
		t.Fatalf("writes = %d, want 2", fake.writes)
	}
}

func TestRemoteClient_GetMissingAndDeleteAbsent(t *testing.T) {
	c := newTestRemoteClient(t, newRemoteFake(t))
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: err = %v, want ErrNotFound", err)
	}
	if err := c.Delete(ctx, "missing", ""); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}

	if _, err := c.Add(ctx, Setting{Key: "present", Value: "x"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Delete(ctx, "present", ""); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "present", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: err = %v, want ErrNotFound", err)
	}
}

func TestRemoteClient_ListFollowsPages(t *testing.T) {
	fake := newRemoteFake(t)
	fake.pageSize = 2
	c := newTestRemoteClient(t, fake)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := c.Add(ctx, Setting{Key: fmt.Sprintf("App:%d", i), Value: "v", Label: "L"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if _, err := c.Add(ctx, Setting{Key: "Other", Value: "v", Label: "L"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := Collect(c.List(ctx, "App:*", "L"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("listed %d settings, want 5", len(got))
	}
	for i, s := range got {
		if want := fmt.Sprintf("App:%d", i); s.Key != want || s.Label != "L" {
			t.Fatalf("item %d = %+v, want key %s", i, s, want)
		}
	}
}
