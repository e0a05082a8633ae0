package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func releaseServer(t *testing.T, tag string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name": "` + tag + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckReportsNewerRelease(t *testing.T) {
	var hits atomic.Int32
	srv := releaseServer(t, "v2.1.0", &hits)

	c := NewChecker(
		WithEndpoint(srv.URL),
		WithCacheDir(t.TempDir()),
		WithCurrentVersion("2.0.0"),
	)

	info, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", info.LatestVersion)
	assert.Equal(t, "2.0.0", info.CurrentVersion)
	assert.True(t, info.UpdateAvailable)
}

func TestCheckUsesCacheOnRepeat(t *testing.T) {
	var hits atomic.Int32
	srv := releaseServer(t, "v2.1.0", &hits)

	c := NewChecker(
		WithEndpoint(srv.URL),
		WithCacheDir(t.TempDir()),
		WithCurrentVersion("2.1.0"),
	)

	info, err := c.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, info.UpdateAvailable)

	info, err = c.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", info.LatestVersion)
	assert.Equal(t, int32(1), hits.Load(), "second check should be served from cache")
}

func TestCheckSurfacesEndpointErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := NewChecker(
		WithEndpoint(srv.URL),
		WithCacheDir(t.TempDir()),
		WithCurrentVersion("1.0.0"),
	)

	_, err := c.Check(context.Background())
	require.ErrorContains(t, err, "status 403")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.0.1", "1.0.0", 1},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
		{"v1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.0-beta", "1.0.0", 0},
		{"dev", "99.0.0", 1},
		{"1.0.0", "dev", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, compareVersions(tt.a, tt.b))
		})
	}
}
