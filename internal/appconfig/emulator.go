package appconfig

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

const (
	// EmulatorAPIVersion is the REST api-version the emulator is spoken to with.
	EmulatorAPIVersion = "2023-11-01"

	mediaTypeKV    = "application/vnd.microsoft.appconfig.kv+json"
	mediaTypeKVSet = "application/vnd.microsoft.appconfig.kvset+json"
)

// EmulatorClient speaks the App Configuration REST dialect without
// authentication, which is what the local emulator accepts.
type EmulatorClient struct {
	endpoint *url.URL
	pl       runtime.Pipeline
	timeout  time.Duration
}

var _ Client = (*EmulatorClient)(nil)

// NewEmulatorClient creates a client for the emulator at endpoint.
func NewEmulatorClient(endpoint *url.URL, opts *Options) (*EmulatorClient, error) {
	if endpoint == nil || endpoint.Host == "" {
		return nil, fmt.Errorf("%w: emulator endpoint is required", ErrConfiguration)
	}
	if opts == nil {
		opts = &Options{}
	}

	co := opts.ClientOptions
	if co.Transport == nil {
		hc := opts.HTTPClient
		if hc == nil {
			hc = &http.Client{}
		}
		co.Transport = hc
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := *endpoint
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""

	return &EmulatorClient{
		endpoint: &base,
		pl:       runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{}, &co),
		timeout:  timeout,
	}, nil
}

// List implements Client. Pages are followed through @nextLink.
func (c *EmulatorClient) List(ctx context.Context, keyFilter, labelFilter string) iter.Seq2[Setting, error] {
	if keyFilter == "" {
		keyFilter = "*"
	}
	if labelFilter == "" {
		labelFilter = "*"
	}
	first := c.endpoint.String() + "/kv?" + encodeQuery(url.Values{
		"key":         {keyFilter},
		"label":       {labelFilter},
		"api-version": {EmulatorAPIVersion},
	})

	return func(yield func(Setting, error) bool) {
		next := first
		for next != "" {
			page, err := c.listPage(ctx, next)
			if err != nil {
				yield(Setting{}, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item.toSetting(), nil) {
					return
				}
			}
			next, err = c.resolve(page.NextLink)
			if err != nil {
				yield(Setting{}, err)
				return
			}
		}
	}
}

func (c *EmulatorClient) listPage(ctx context.Context, pageURL string) (kvPage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := runtime.NewRequest(ctx, http.MethodGet, pageURL)
	if err != nil {
		return kvPage{}, fmt.Errorf("list settings: create request: %w", err)
	}
	req.Raw().Header.Set("Accept", mediaTypeKVSet+", application/json")

	resp, err := c.pl.Do(req)
	if err != nil {
		return kvPage{}, fmt.Errorf("list settings: %w", err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return kvPage{}, classify("list settings", runtime.NewResponseError(resp), nil)
	}

	var page kvPage
	if err := runtime.UnmarshalAsJSON(resp, &page); err != nil {
		return kvPage{}, fmt.Errorf("list settings: decode response: %w", err)
	}
	return page, nil
}

// Get implements Client.
func (c *EmulatorClient) Get(ctx context.Context, key, label string) (Setting, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := runtime.NewRequest(ctx, http.MethodGet, c.kvURL(key, label))
	if err != nil {
		return Setting{}, fmt.Errorf("get %s: create request: %w", key, err)
	}
	req.Raw().Header.Set("Accept", mediaTypeKV+", application/json")

	resp, err := c.pl.Do(req)
	if err != nil {
		return Setting{}, fmt.Errorf("get %s: %w", key, err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return Setting{}, classify("get "+key, runtime.NewResponseError(resp), nil)
	}
	return decodeItem("get "+key, resp)
}

// Set implements Client.
func (c *EmulatorClient) Set(ctx context.Context, s Setting, onlyIfUnchanged bool) (Setting, error) {
	if err := CheckConditional(s, onlyIfUnchanged); err != nil {
		return Setting{}, err
	}
	op := "set " + s.Key
	return c.put(ctx, op, s, ErrPreconditionFailed, func(h http.Header) {
		if onlyIfUnchanged {
			h.Set("If-Match", quoteETag(s.ETag))
		}
	})
}

// Add implements Client.
func (c *EmulatorClient) Add(ctx context.Context, s Setting) (Setting, error) {
	op := "add " + s.Key
	return c.put(ctx, op, s, ErrAlreadyExists, func(h http.Header) {
		h.Set("If-None-Match", "*")
	})
}

func (c *EmulatorClient) put(ctx context.Context, op string, s Setting, conflict error, conditions func(http.Header)) (Setting, error) {
	if strings.TrimSpace(s.Key) == "" {
		return Setting{}, fmt.Errorf("%s: key is required", op)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := runtime.NewRequest(ctx, http.MethodPut, c.kvURL(s.Key, s.Label))
	if err != nil {
		return Setting{}, fmt.Errorf("%s: create request: %w", op, err)
	}
	payload := kvPayload{Value: s.Value, ContentType: s.ContentType, Tags: cloneTags(s.Tags)}
	if err := runtime.MarshalAsJSON(req, payload); err != nil {
		return Setting{}, fmt.Errorf("%s: encode body: %w", op, err)
	}
	req.Raw().Header.Set("Content-Type", mediaTypeKV)
	req.Raw().Header.Set("Accept", mediaTypeKV+", application/json")
	conditions(req.Raw().Header)

	resp, err := c.pl.Do(req)
	if err != nil {
		return Setting{}, fmt.Errorf("%s: %w", op, err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated) {
		return Setting{}, classify(op, runtime.NewResponseError(resp), conflict)
	}
	return decodeItem(op, resp)
}

// Delete implements Client.
func (c *EmulatorClient) Delete(ctx context.Context, key, label string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := runtime.NewRequest(ctx, http.MethodDelete, c.kvURL(key, label))
	if err != nil {
		return fmt.Errorf("delete %s: create request: %w", key, err)
	}
	resp, err := c.pl.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if runtime.HasStatusCode(resp, http.StatusOK, http.StatusNoContent, http.StatusNotFound) {
		return nil
	}
	return classify("delete "+key, runtime.NewResponseError(resp), nil)
}

func (c *EmulatorClient) kvURL(key, label string) string {
	q := url.Values{"api-version": {EmulatorAPIVersion}}
	if label != "" {
		q.Set("label", label)
	}
	return c.endpoint.String() + "/kv/" + url.PathEscape(key) + "?" + encodeQuery(q)
}

func (c *EmulatorClient) resolve(next string) (string, error) {
	if next == "" {
		return "", nil
	}
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("list settings: invalid next link %q: %w", next, err)
	}
	return c.endpoint.ResolveReference(ref).String(), nil
}

// encodeQuery is url.Values.Encode with %2A turned back into "*" so wildcard
// filters stay readable in request logs.
func encodeQuery(q url.Values) string {
	return strings.ReplaceAll(q.Encode(), "%2A", "*")
}

func quoteETag(etag string) string {
	if etag == "*" || strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, `W/"`) {
		return etag
	}
	return `"` + etag + `"`
}

func decodeItem(op string, resp *http.Response) (Setting, error) {
	var item kvItem
	if err := runtime.UnmarshalAsJSON(resp, &item); err != nil {
		return Setting{}, fmt.Errorf("%s: decode response: %w", op, err)
	}
	s := item.toSetting()
	if s.ETag == "" {
		s.ETag = strings.Trim(resp.Header.Get("ETag"), `"`)
	}
	return s, nil
}

type kvPage struct {
	Items    []kvItem `json:"items"`
	NextLink string   `json:"@nextLink,omitempty"`
}

type kvItem struct {
	Key          string            `json:"key"`
	Value        *string           `json:"value"`
	Label        *string           `json:"label"`
	ContentType  *string           `json:"content_type"`
	ETag         string            `json:"etag"`
	Locked       bool              `json:"locked"`
	LastModified *time.Time        `json:"last_modified"`
	Tags         map[string]string `json:"tags"`
}

func (i kvItem) toSetting() Setting {
	s := Setting{
		Key:    i.Key,
		ETag:   i.ETag,
		Locked: i.Locked,
		Tags:   cloneTags(i.Tags),
	}
	if i.Value != nil {
		s.Value = *i.Value
	}
	if i.Label != nil {
		s.Label = *i.Label
	}
	if i.ContentType != nil {
		s.ContentType = *i.ContentType
	}
	if i.LastModified != nil {
		s.LastModified = *i.LastModified
	}
	return s
}

type kvPayload struct {
	Value       string            `json:"value"`
	ContentType string            `json:"content_type,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}
