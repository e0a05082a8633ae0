// Package update asks GitHub whether a newer grantor release exists.
// Results are cached on disk so repeated `grantor version --check` runs
// do not hammer the API.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pthm/grantor/internal/version"
)

const releasesURL = "https://api.github.com/repos/pthm/grantor/releases/latest"

// Info is the outcome of a release check against the running binary.
type Info struct {
	LatestVersion   string    `json:"latest_version"`
	CurrentVersion  string    `json:"current_version"`
	CheckedAt       time.Time `json:"checked_at"`
	UpdateAvailable bool      `json:"update_available"`
}

// Checker resolves the latest published release, consulting a small
// on-disk cache before going to the network.
type Checker struct {
	endpoint string
	cacheDir string
	client   *http.Client
	current  string
	maxAge   time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithEndpoint overrides the release endpoint.
func WithEndpoint(url string) Option {
	return func(c *Checker) { c.endpoint = url }
}

// WithCacheDir overrides where check results are cached.
func WithCacheDir(dir string) Option {
	return func(c *Checker) { c.cacheDir = dir }
}

// WithCurrentVersion overrides the running version being compared.
func WithCurrentVersion(v string) Option {
	return func(c *Checker) { c.current = v }
}

// NewChecker builds a Checker with the GitHub endpoint and the user's
// XDG cache directory.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		endpoint: releasesURL,
		cacheDir: defaultCacheDir(),
		client:   &http.Client{Timeout: 5 * time.Second},
		current:  version.Version,
		maxAge:   24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check returns release info, reusing a cached result younger than a
// day. Cache write failures are swallowed; the check still succeeds.
func (c *Checker) Check(ctx context.Context) (*Info, error) {
	if info, err := c.readCache(); err == nil && time.Since(info.CheckedAt) < c.maxAge {
		info.CurrentVersion = c.current
		info.UpdateAvailable = compareVersions(c.current, info.LatestVersion) < 0
		return info, nil
	}

	info, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.writeCache(info)
	return info, nil
}

func (c *Checker) fetch(ctx context.Context) (*Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "grantor/"+c.current)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release endpoint returned status %d", resp.StatusCode)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	return &Info{
		LatestVersion:   latest,
		CurrentVersion:  c.current,
		CheckedAt:       time.Now(),
		UpdateAvailable: compareVersions(c.current, latest) < 0,
	}, nil
}

func (c *Checker) cachePath() string {
	return filepath.Join(c.cacheDir, "release-check.json")
}

func (c *Checker) readCache() (*Info, error) {
	data, err := os.ReadFile(c.cachePath())
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Checker) writeCache(info *Info) error {
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.cachePath(), data, 0o644)
}

func defaultCacheDir() string {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheHome, "grantor")
}

// compareVersions orders two semver strings: -1 when a < b, 0 when
// equal, 1 when a > b. "dev" builds always count as newest.
func compareVersions(a, b string) int {
	a = strings.TrimPrefix(a, "v")
	b = strings.TrimPrefix(b, "v")

	if a == "dev" {
		return 1
	}
	if b == "dev" {
		return -1
	}

	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	maxLen := len(partsA)
	if len(partsB) > maxLen {
		maxLen = len(partsB)
	}

	for i := 0; i < maxLen; i++ {
		var numA, numB int
		if i < len(partsA) {
			// ignore pre-release suffixes like "1.0.0-beta"
			numA, _ = strconv.Atoi(strings.Split(partsA[i], "-")[0])
		}
		if i < len(partsB) {
			numB, _ = strconv.Atoi(strings.Split(partsB[i], "-")[0])
		}
		if numA != numB {
			if numA < numB {
				return -1
			}
			return 1
		}
	}
	return 0
}
