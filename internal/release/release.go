package release

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swpsco/nockpool-launcher/internal/hostinfo"
)

const userAgent = "miner-launcher"

// ErrUnsupportedPlatform means the release manifest was reachable but offers
// no package for this host. It is a terminal, user-facing condition, kept
// distinct from transport failures because the remediation differs.
var ErrUnsupportedPlatform = errors.New("no compatible package for this platform")

// Descriptor identifies one downloadable build. It is produced fresh on
// every Resolve call and never cached.
type Descriptor struct {
	Version string
	Asset   string
	URL     string
}

type manifest struct {
	TagName        string  `json:"tag_name"`
	Assets         []asset `json:"assets"`
	SelectedBinary string  `json:"selected_binary,omitempty"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Client resolves and downloads miner releases. It is stateless and safe to
// share between the startup path and the background poll.
type Client struct {
	url         string
	binName     string
	postProfile bool
	http        *http.Client
}

func NewClient(url, binName string, postProfile bool) *Client {
	return &Client{
		url:         url,
		binName:     binName,
		postProfile: postProfile,
		http:        &http.Client{Timeout: 30 * time.Second},
	}
}

// Resolve fetches the release manifest and selects the asset matching the
// host. The default scheme is an exact name match on
// {bin}-{os}-{arch}[.zip]; when the server names a selected binary it is
// cross-checked against the asset list by os/arch substring instead.
func (c *Client) Resolve(ctx context.Context, profile hostinfo.Profile) (Descriptor, error) {
	m, err := c.fetchManifest(ctx, profile)
	if err != nil {
		return Descriptor{}, err
	}
	version := strings.TrimPrefix(m.TagName, "v")

	want := c.packageName(profile)
	for _, a := range m.Assets {
		if a.Name == want {
			return Descriptor{Version: version, Asset: a.Name, URL: a.BrowserDownloadURL}, nil
		}
	}

	if m.SelectedBinary != "" {
		for _, a := range m.Assets {
			if a.Name != m.SelectedBinary {
				continue
			}
			if strings.Contains(a.Name, profile.OS) && strings.Contains(a.Name, profile.Arch) {
				return Descriptor{Version: version, Asset: a.Name, URL: a.BrowserDownloadURL}, nil
			}
		}
	}

	return Descriptor{}, fmt.Errorf("%w (os=%s arch=%s)", ErrUnsupportedPlatform, profile.OS, profile.Arch)
}

// Download fetches the package bytes for a resolved descriptor.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download package: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download package: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download package: unexpected status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download package: %w", err)
	}
	return b, nil
}

func (c *Client) fetchManifest(ctx context.Context, profile hostinfo.Profile) (manifest, error) {
	var req *http.Request
	var err error
	if c.postProfile {
		body, merr := json.Marshal(profile)
		if merr != nil {
			return manifest{}, fmt.Errorf("encode host profile: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	}
	if err != nil {
		return manifest{}, fmt.Errorf("fetch release manifest: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return manifest{}, fmt.Errorf("fetch release manifest: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return manifest{}, fmt.Errorf("fetch release manifest: unexpected status %d", resp.StatusCode)
	}
	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return manifest{}, fmt.Errorf("fetch release manifest: %w", err)
	}
	return m, nil
}

func (c *Client) packageName(profile hostinfo.Profile) string {
	name := fmt.Sprintf("%s-%s-%s", c.binName, profile.OS, profile.Arch)
	if profile.OS == "macos" {
		name += ".zip"
	}
	return name
}
