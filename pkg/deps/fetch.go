package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/RavenSong/textpattern-hive-framework/pkg/buildsys"
)

// ProgressFunc creates a progress bar for a transfer of length bytes (-1 if unknown)
type ProgressFunc func(length int64, desc string) *progressbar.ProgressBar

// DefaultProgress shows byte progress bars on interactive terminals only
func DefaultProgress(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" || !term.IsTerminal(int(os.Stderr.Fd())) {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// Fetcher downloads and unpacks the archives of a Config
type Fetcher struct {
	Root   string
	Client *http.Client
	// Update records checksum mismatches instead of failing.
	Update   bool
	Progress ProgressFunc
}

func NewFetcher(root string, update bool) *Fetcher {
	return &Fetcher{
		Root: root,
		Client: &http.Client{
			Timeout: 30 * time.Minute,
		},
		Update:   update,
		Progress: DefaultProgress,
	}
}

// Fetch processes every entry of cfg whose stamp or destination is outdated and updates
// stamps in place. It returns the actual checksums of archives whose checksum differed
// (only possible in update mode).
func (f *Fetcher) Fetch(ctx context.Context, cfg *Config, stamps map[string]string) (map[string]string, error) {
	changes := map[string]string{}
	for _, name := range cfg.Names() {
		spec := cfg.Deps[name]
		dest := filepath.Join(f.Root, spec.Dest)

		_, err := os.Stat(dest)
		destExists := err == nil
		if stamp, ok := stamps[name]; ok && stamp == spec.stamp() && destExists {
			buildsys.Log(ctx).Debug().Msgf("%s is up to date", name)
			continue
		}

		if spec.Sha256 == "" && !f.Update {
			return changes, eris.Errorf("%s doesn't have a checksum, run with --update to add it", name)
		}

		buildsys.Log(ctx).Info().Str("url", spec.URL).Msgf("Fetching %s", name)
		checksum, err := f.fetchOne(ctx, name, spec)
		if err != nil {
			return changes, err
		}

		if checksum != spec.Sha256 {
			changes[name] = checksum
			spec.Sha256 = checksum
		}
		stamps[name] = spec.stamp()
	}

	return changes, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, name string, spec Spec) (string, error) {
	archive, err := os.CreateTemp("", "hivebuild-vendor-*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "failed to create a temporary file")
	}
	defer func() {
		archive.Close()
		os.Remove(archive.Name())
	}()

	length, checksum, err := f.download(ctx, spec.URL, archive)
	if err != nil {
		return "", err
	}

	if checksum != spec.Sha256 {
		if !f.Update {
			return "", eris.Errorf("checksum check failed for %s: expected %s, got %s", name, spec.Sha256, checksum)
		}
		buildsys.Log(ctx).Warn().Msgf("Updating the checksum of %s to %s", name, checksum)
	}

	extract, err := extractorFor(spec.URL)
	if err != nil {
		return "", err
	}

	_, err = archive.Seek(0, io.SeekStart)
	if err != nil {
		return "", eris.Wrap(err, "failed to rewind the download")
	}

	dest := filepath.Join(f.Root, spec.Dest)
	err = os.MkdirAll(filepath.Dir(dest), 0o770)
	if err != nil {
		return "", eris.Wrapf(err, "failed to create %s", filepath.Dir(dest))
	}
	staging, err := os.MkdirTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return "", eris.Wrapf(err, "failed to create a staging directory next to %s", dest)
	}
	defer os.RemoveAll(staging)

	bar := f.progress(length, "extract "+name)
	err = extract(archive, length, bar, staging, spec.Strip)
	if err != nil {
		return "", eris.Wrapf(err, "failed to extract %s", spec.URL)
	}
	bar.Finish()

	err = os.RemoveAll(dest)
	if err != nil {
		return "", eris.Wrapf(err, "failed to remove %s", dest)
	}
	err = os.Rename(staging, dest)
	if err != nil {
		return "", eris.Wrapf(err, "failed to move %s into place", dest)
	}

	return checksum, nil
}

func (f *Fetcher) progress(length int64, desc string) *progressbar.ProgressBar {
	if f.Progress == nil {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}
	return f.Progress(length, desc)
}

// download writes the response body of url to w and returns its length and SHA-256
func (f *Fetcher) download(ctx context.Context, url string, w io.Writer) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", eris.Wrapf(err, "invalid url %s", url)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", eris.Wrapf(err, "failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", eris.Errorf("download of %s failed with status %s", url, resp.Status)
	}

	hash := sha256.New()
	bar := f.progress(resp.ContentLength, "download")
	n, err := io.Copy(io.MultiWriter(w, hash, bar), resp.Body)
	if err != nil {
		return 0, "", eris.Wrapf(err, "failed during download of %s", url)
	}
	bar.Finish()

	return n, hex.EncodeToString(hash.Sum(nil)), nil
}
