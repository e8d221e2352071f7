package appconfig

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azappconfig"
)

// RemoteClient wraps the Azure SDK App Configuration client. Writes carry the
// value, label and content type; tags are only read.
type RemoteClient struct {
	client *azappconfig.Client
}

var _ Client = (*RemoteClient)(nil)

// NewRemoteClient authenticates with the connection string in t, or with the
// ambient credential chain when t.AmbientCredential is set.
func NewRemoteClient(t Target, opts *Options) (*RemoteClient, error) {
	if opts == nil {
		opts = &Options{}
	}
	co := &azappconfig.ClientOptions{ClientOptions: opts.ClientOptions}

	if !t.AmbientCredential {
		if strings.TrimSpace(t.ConnectionString) == "" {
			return nil, fmt.Errorf("%w: remote client needs a connection string or ambient credential", ErrConfiguration)
		}
		c, err := azappconfig.NewClientFromConnectionString(t.ConnectionString, co)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return &RemoteClient{client: c}, nil
	}

	if t.Endpoint == nil {
		return nil, fmt.Errorf("%w: remote endpoint is required", ErrConfiguration)
	}
	cred := opts.Credential
	if cred == nil {
		dac, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("appconfig: ambient credential: %w", err)
		}
		cred = dac
	}
	c, err := azappconfig.NewClient(t.Endpoint.String(), cred, co)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &RemoteClient{client: c}, nil
}

// List implements Client.
func (c *RemoteClient) List(ctx context.Context, keyFilter, labelFilter string) iter.Seq2[Setting, error] {
	if keyFilter == "" {
		keyFilter = "*"
	}
	if labelFilter == "" {
		labelFilter = "*"
	}
	return func(yield func(Setting, error) bool) {
		pager := c.client.NewListSettingsPager(azappconfig.SettingSelector{
			KeyFilter:   to.Ptr(keyFilter),
			LabelFilter: to.Ptr(labelFilter),
		}, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield(Setting{}, classify("list settings", err, nil))
				return
			}
			for _, s := range page.Settings {
				if !yield(fromSDK(s), nil) {
					return
				}
			}
		}
	}
}

// Get implements Client.
func (c *RemoteClient) Get(ctx context.Context, key, label string) (Setting, error) {
	resp, err := c.client.GetSetting(ctx, key, &azappconfig.GetSettingOptions{Label: optional(label)})
	if err != nil {
		return Setting{}, classify("get "+key, err, nil)
	}
	return fromSDK(resp.Setting), nil
}

// Set implements Client.
func (c *RemoteClient) Set(ctx context.Context, s Setting, onlyIfUnchanged bool) (Setting, error) {
	if err := CheckConditional(s, onlyIfUnchanged); err != nil {
		return Setting{}, err
	}
	opts := &azappconfig.SetSettingOptions{
		Label:       optional(s.Label),
		ContentType: optional(s.ContentType),
	}
	if onlyIfUnchanged {
		etag := azcore.ETag(s.ETag)
		opts.OnlyIfUnchanged = &etag
	}
	resp, err := c.client.SetSetting(ctx, s.Key, to.Ptr(s.Value), opts)
	if err != nil {
		return Setting{}, classify("set "+s.Key, err, ErrPreconditionFailed)
	}
	return fromSDK(resp.Setting), nil
}

// Add implements Client.
func (c *RemoteClient) Add(ctx context.Context, s Setting) (Setting, error) {
	resp, err := c.client.AddSetting(ctx, s.Key, to.Ptr(s.Value), &azappconfig.AddSettingOptions{
		Label:       optional(s.Label),
		ContentType: optional(s.ContentType),
	})
	if err != nil {
		return Setting{}, classify("add "+s.Key, err, ErrAlreadyExists)
	}
	return fromSDK(resp.Setting), nil
}

// Delete implements Client.
func (c *RemoteClient) Delete(ctx context.Context, key, label string) error {
	_, err := c.client.DeleteSetting(ctx, key, &azappconfig.DeleteSettingOptions{Label: optional(label)})
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return classify("delete "+key, err, nil)
	}
	return nil
}

func fromSDK(s azappconfig.Setting) Setting {
	out := Setting{Tags: cloneTags(s.Tags)}
	if s.Key != nil {
		out.Key = *s.Key
	}
	if s.Value != nil {
		out.Value = *s.Value
	}
	if s.Label != nil {
		out.Label = *s.Label
	}
	if s.ContentType != nil {
		out.ContentType = *s.ContentType
	}
	if s.ETag != nil {
		out.ETag = string(*s.ETag)
	}
	if s.LastModified != nil {
		out.LastModified = *s.LastModified
	}
	if s.IsReadOnly != nil {
		out.Locked = *s.IsReadOnly
	}
	return out
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
