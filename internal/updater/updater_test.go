package updater

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		remote, local string
		want          bool
	}{
		{"v1.2.0", "v1.1.9", true},
		{"v1.2.0", "v1.2.0", false},
		{"v1.2.0", "v1.10.0", false},
		{"v2.0.0-rc1", "v1.9.9", true},
		{"v1.0.1+build", "v1.0.0", true},
		{"v1.2.0", "dev", false},
		{"garbage", "v1.0.0", false},
		{"v1.2", "v1.0.0", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsNewer(tt.remote, tt.local), "%s vs %s", tt.remote, tt.local)
	}
}

func TestParseSemver(t *testing.T) {
	v, ok := ParseSemver("v1.20.3-rc1")
	require.True(t, ok)
	assert.Equal(t, Semver{1, 20, 3}, v)
	assert.Equal(t, 1, v.Compare(Semver{1, 3, 9}))
	assert.Equal(t, 0, v.Compare(Semver{1, 20, 3}))
	assert.Equal(t, -1, v.Compare(Semver{2, 0, 0}))

	for _, bad := range []string{"", "dev", "v1.2", "v1.2.3.4", "v1.x.3", "v1.-2.3"} {
		_, ok := ParseSemver(bad)
		assert.False(t, ok, bad)
	}
}

func TestAssetName(t *testing.T) {
	assert.Equal(t, "selector-vanitygen-linux-amd64", AssetName("linux", "amd64"))
	assert.Equal(t, "selector-vanitygen-windows-arm64.exe", AssetName("windows", "arm64"))
}

func releaseServer(t *testing.T, tag string, payload []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/repos/StormyCloudInc/selector-vanitygen/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "selector-vanitygen/")
		fmt.Fprintf(w, `{"tag_name":%q,"html_url":"https://example.invalid/r","assets":[{"name":%q,"browser_download_url":%q,"size":%d}]}`,
			tag, AssetName(runtime.GOOS, runtime.GOARCH), srv.URL+"/asset", len(payload))
	})
	mux.HandleFunc("/asset", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckNewerRelease(t *testing.T) {
	srv := releaseServer(t, "v1.3.0", []byte("binary"))
	c := &Client{BaseURL: srv.URL, Current: "v1.2.0"}

	rel, err := c.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "v1.3.0", rel.TagName)
	assert.Equal(t, srv.URL+"/asset", rel.AssetURL)
	assert.Equal(t, int64(6), rel.AssetSize)
}

func TestCheckUpToDate(t *testing.T) {
	srv := releaseServer(t, "v1.2.0", nil)
	rel, err := (&Client{BaseURL: srv.URL, Current: "v1.2.0"}).Check(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestCheckHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := (&Client{BaseURL: srv.URL, Current: "v1.0.0"}).Check(context.Background())
	assert.Error(t, err)
}

func TestDownloadAndApply(t *testing.T) {
	payload := []byte("new binary contents")
	srv := releaseServer(t, "v9.0.0", payload)
	c := &Client{BaseURL: srv.URL, Current: "v1.0.0"}

	rel, err := c.Check(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	var last int64
	path, err := c.Download(context.Background(), rel, dir, func(n int64) { last = n })
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), last)

	target := filepath.Join(dir, "selector-vanitygen")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0755))
	require.NoError(t, Apply(path, target))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	old, err := os.ReadFile(BackupPath(target))
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))
}

func TestDownloadWithoutAsset(t *testing.T) {
	_, err := (&Client{}).Download(context.Background(), &Release{TagName: "v1.0.0"}, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNoAsset)
}

func TestDownloadSizeMismatch(t *testing.T) {
	srv := releaseServer(t, "v9.0.0", []byte("twelve bytes"))
	rel, err := (&Client{BaseURL: srv.URL, Current: "v1.0.0"}).Check(context.Background())
	require.NoError(t, err)
	rel.AssetSize = 4

	dir := t.TempDir()
	_, err = (&Client{}).Download(context.Background(), rel, dir, nil)
	require.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestApplyRestoresOnFailure(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "selector-vanitygen")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0755))

	err := Apply(filepath.Join(dir, "missing"), target)
	require.Error(t, err)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}
