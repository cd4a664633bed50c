// Package updater checks GitHub for a newer release and can replace the
// running binary with it.
package updater

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/StormyCloudInc/selector-vanitygen/internal/version"
)

const (
	owner = "StormyCloudInc"
	repo  = "selector-vanitygen"

	defaultAPI = "https://api.github.com"
)

// ErrNoAsset means the release carries no binary for this platform.
var ErrNoAsset = errors.New("no release asset for this platform")

// Release holds parsed information from the GitHub releases API.
type Release struct {
	TagName   string `json:"tag" yaml:"tag"`
	HTMLURL   string `json:"url" yaml:"url"`
	AssetURL  string `json:"asset_url" yaml:"asset_url"`
	AssetSize int64  `json:"asset_size" yaml:"asset_size"`
}

// Client talks to the releases API. The zero value uses api.github.com.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// Current is the running version; empty means version.Version.
	Current string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) current() string {
	if c.Current != "" {
		return c.Current
	}
	return version.Version
}

// Check returns the latest release if it is newer than the running
// version, or nil, nil when already up to date.
func (c *Client) Check(ctx context.Context) (*Release, error) {
	base := c.BaseURL
	if base == "" {
		base = defaultAPI
	}
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", strings.TrimSuffix(base, "/"), owner, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api: status %d", resp.StatusCode)
	}

	var gh struct {
		TagName string `json:"tag_name"`
		HTMLURL string `json:"html_url"`
		Assets  []struct {
			Name               string `json:"name"`
			BrowserDownloadURL string `json:"browser_download_url"`
			Size               int64  `json:"size"`
		} `json:"assets"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&gh); err != nil {
		return nil, fmt.Errorf("parsing github response: %w", err)
	}

	if !IsNewer(gh.TagName, c.current()) {
		return nil, nil
	}

	rel := &Release{TagName: gh.TagName, HTMLURL: gh.HTMLURL}
	want := AssetName(runtime.GOOS, runtime.GOARCH)
	for _, a := range gh.Assets {
		if strings.EqualFold(a.Name, want) {
			rel.AssetURL = a.BrowserDownloadURL
			rel.AssetSize = a.Size
			break
		}
	}
	return rel, nil
}

// Download fetches the release asset into a temporary file in dir and
// returns its path. onProgress, when set, receives the bytes written so
// far after every chunk.
func (c *Client) Download(ctx context.Context, r *Release, dir string, onProgress func(written int64)) (string, error) {
	if r.AssetURL == "" {
		return "", fmt.Errorf("%w: release %s, want %s", ErrNoAsset, r.TagName, AssetName(runtime.GOOS, runtime.GOARCH))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.AssetURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "selector-vanitygen-update-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}

	body := io.Reader(resp.Body)
	if r.AssetSize > 0 {
		// One byte more than listed is enough to detect an oversize asset.
		body = io.LimitReader(body, r.AssetSize+1)
	}
	cw := &countingWriter{ctx: ctx, w: tmp, onWrite: onProgress}
	if _, err := io.Copy(cw, body); err != nil {
		return fail(err)
	}
	written := cw.n
	if r.AssetSize > 0 && written != r.AssetSize {
		return fail(fmt.Errorf("download: got %d bytes, release lists %d", written, r.AssetSize))
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0755); err != nil {
			os.Remove(tmpPath)
			return "", err
		}
	}
	return tmpPath, nil
}

// BackupPath is where Apply keeps the replaced binary.
func BackupPath(target string) string { return target + ".old" }

// Apply swaps the downloaded binary in for target. The previous binary
// stays at BackupPath(target) until the next Cleanup; if the swap fails
// target is restored.
func Apply(downloadedPath, target string) error {
	backup := BackupPath(target)
	if err := os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale backup: %w", err)
	}
	if err := os.Rename(target, backup); err != nil {
		return fmt.Errorf("backing up %s: %w", target, err)
	}
	if err := os.Rename(downloadedPath, target); err != nil {
		if rbErr := os.Rename(backup, target); rbErr != nil {
			return errors.Join(fmt.Errorf("installing update: %w", err), fmt.Errorf("restoring backup: %w", rbErr))
		}
		return fmt.Errorf("installing update: %w", err)
	}
	return nil
}

// Executable is the resolved path of the running binary.
func Executable() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(p)
}

// Cleanup deletes the backup left by a previous Apply, if any.
func Cleanup() {
	if p, err := Executable(); err == nil {
		_ = os.Remove(BackupPath(p))
	}
}

// Semver is a MAJOR.MINOR.PATCH release number. Pre-release and build
// suffixes are not part of the ordering.
type Semver [3]int

// ParseSemver reads "v1.2.3", "1.2.3", "v1.2.3-rc1" or "v1.2.3+build".
func ParseSemver(s string) (Semver, bool) {
	var v Semver
	core, _, _ := strings.Cut(strings.TrimPrefix(s, "v"), "-")
	core, _, _ = strings.Cut(core, "+")
	fields := strings.Split(core, ".")
	if len(fields) != len(v) {
		return v, false
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return v, false
		}
		v[i] = n
	}
	return v, true
}

// Compare returns -1, 0 or +1 as v sorts before, equal to or after o.
func (v Semver) Compare(o Semver) int {
	for i := range v {
		if c := cmp.Compare(v[i], o[i]); c != 0 {
			return c
		}
	}
	return 0
}

// IsNewer reports whether release tag remote is ahead of local. Unparsable
// tags and "dev" builds never compare as newer.
func IsNewer(remote, local string) bool {
	r, okR := ParseSemver(remote)
	l, okL := ParseSemver(local)
	return okR && okL && r.Compare(l) > 0
}

// AssetName is the release asset filename for a platform.
func AssetName(goos, goarch string) string {
	ext := ""
	if goos == "windows" {
		ext = ".exe"
	}
	return fmt.Sprintf("selector-vanitygen-%s-%s%s", goos, goarch, ext)
}

// countingWriter forwards to w, stops once ctx is done and reports the
// running total to onWrite.
type countingWriter struct {
	ctx     context.Context
	w       io.Writer
	n       int64
	onWrite func(int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	if c.onWrite != nil && n > 0 {
		c.onWrite(c.n)
	}
	return n, err
}
