// Package sync installs and refreshes the local vulnerability.db mirror
// internal/advisorydb reads from: fetch the upstream listing, compare build
// timestamps, download and verify a newer build, and atomically swap it
// into place. Grounded on
// original_source/src/utils/grypedb/mod.rs's sync/download/verify/unarchive.
package sync

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/42ByteLabs/konarr-core/internal/advisorydb"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/ports"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
)

// Syncer installs and refreshes path/5/vulnerability.db.
type Syncer struct {
	http     ports.HTTPDoer
	baseDir  string
	settings *settings.Store
	breaker  *gobreaker.CircuitBreaker
	log      observability.Logger
}

// New builds a Syncer rooted at baseDir (the directory internal/advisorydb
// is pointed at). doer defaults to http.DefaultClient if nil. st records the
// security.advisories.{polling,updated} side effects spec §7 requires; a nil
// st leaves Sync's settings bookkeeping a no-op, for callers (tests, the
// bootstrap-before-first-open path) that don't need it.
func New(doer ports.HTTPDoer, baseDir string, st *settings.Store, log observability.Logger) *Syncer {
	if doer == nil {
		doer = http.DefaultClient
	}
	if log == nil {
		log = observability.NewStandardLogger("sync")
	}
	return &Syncer{
		http:     doer,
		baseDir:  baseDir,
		settings: st,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "advisorydb-listing",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state change", map[string]interface{}{
					"breaker": name, "from": from.String(), "to": to.String(),
				})
			},
		}),
		log: log,
	}
}

// dbPath is the installed database file this sync manages.
func (s *Syncer) dbPath() string {
	return filepath.Join(s.baseDir, "5", "vulnerability.db")
}

// Sync fetches the upstream listing and installs a newer build if one is
// available, reporting whether it did. It is safe to call on every tick —
// an up-to-date local database is a no-op. Per spec §7/§8 Scenario 6, a
// failed attempt resets security.advisories.polling to disabled and leaves
// security.advisories.updated unadvanced; a successful attempt (whether or
// not it actually installed a new build) advances security.advisories.updated
// and leaves polling untouched.
func (s *Syncer) Sync(ctx context.Context) (bool, error) {
	runID := uuid.New().String()
	s.log.Debug("advisory sync run starting", map[string]interface{}{"run_id": runID})

	changed, err := s.syncOnce(ctx)
	if err != nil {
		if s.settings != nil {
			if resetErr := s.settings.SetToggle(ctx, settings.KeySecurityAdvisoriesPolling, false); resetErr != nil {
				s.log.Warn("reset advisory polling toggle after sync failure", map[string]interface{}{
					"run_id": runID, "error": resetErr.Error(),
				})
			}
		}
		s.log.Warn("advisory sync run failed", map[string]interface{}{"run_id": runID, "error": err.Error()})
		return changed, err
	}

	if s.settings != nil {
		now := time.Now().UTC().Format(time.RFC3339)
		if setErr := s.settings.Set(ctx, settings.KeySecurityAdvisoriesUpdated, settings.TypeDatetime, now); setErr != nil {
			return changed, fmt.Errorf("record advisory sync timestamp: %w", setErr)
		}
	}
	s.log.Debug("advisory sync run finished", map[string]interface{}{"run_id": runID, "changed": changed})
	return changed, nil
}

// syncOnce does the actual fetch-compare-install work; Sync wraps it with
// the settings bookkeeping above.
func (s *Syncer) syncOnce(ctx context.Context) (bool, error) {
	latest, err := s.latest(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch listing: %w", err)
	}
	latestBuild := latest.Built.Truncate(time.Second)

	if _, err := os.Stat(s.dbPath()); errors.Is(err, os.ErrNotExist) {
		s.log.Info("no local advisory database, installing", map[string]interface{}{"url": latest.URL})
		return true, s.install(ctx, latest)
	}

	db, err := advisorydb.Open(s.baseDir)
	if err != nil {
		return false, fmt.Errorf("open local advisory database: %w", err)
	}
	info, err := db.BuildInfo(ctx)
	closeErr := db.Close()
	if err != nil {
		return false, fmt.Errorf("read local build info: %w", err)
	}
	if closeErr != nil {
		s.log.Warn("close local advisory database", map[string]interface{}{"error": closeErr.Error()})
	}

	localBuild := info.BuildTimestamp.Truncate(time.Second)
	if !latestBuild.After(localBuild) {
		s.log.Debug("advisory database is up to date", map[string]interface{}{"build": localBuild})
		return false, nil
	}

	s.log.Info("newer advisory database available, updating", map[string]interface{}{
		"local": localBuild, "latest": latestBuild,
	})
	return true, s.install(ctx, latest)
}

// latest fetches the upstream listing, through a backoff retry loop guarded
// by a circuit breaker so a wedged upstream degrades rather than blocking
// every sync tick.
func (s *Syncer) latest(ctx context.Context) (*ListingEntry, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute

	result, err := s.breaker.Execute(func() (interface{}, error) {
		var listing *ListingResponse
		op := func() error {
			body, err := s.getBody(ctx, listingURL)
			if err != nil {
				return err
			}
			listing, err = parseListing(body)
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
			return nil, err
		}
		return listing, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*ListingResponse).Latest()
}

func (s *Syncer) getBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

// install downloads and verifies a build, unpacks it into a staging
// directory inside the schema-version directory, and renames the unpacked
// vulnerability.db over the live one.
func (s *Syncer) install(ctx context.Context, entry *ListingEntry) error {
	versionDir := filepath.Join(s.baseDir, fmt.Sprintf("%d", entry.Version))
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}

	archivePath := filepath.Join(versionDir, "vulnerability.tar.gz")
	if err := s.downloadArchive(ctx, entry.URL, archivePath); err != nil {
		return fmt.Errorf("download archive: %w", err)
	}

	ok, err := verifyChecksum(archivePath, entry.Checksum)
	if err != nil {
		return fmt.Errorf("verify checksum: %w", err)
	}
	if !ok {
		_ = os.Remove(archivePath)
		return fmt.Errorf("checksum verification failed for %s, refusing to install", entry.URL)
	}

	stagingDir, err := os.MkdirTemp(versionDir, ".staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(stagingDir) }()

	if err := unarchive(archivePath, stagingDir); err != nil {
		return fmt.Errorf("unarchive: %w", err)
	}
	if err := os.Rename(filepath.Join(stagingDir, "vulnerability.db"), filepath.Join(versionDir, "vulnerability.db")); err != nil {
		return fmt.Errorf("swap in new database: %w", err)
	}
	if err := os.Remove(archivePath); err != nil {
		s.log.Warn("remove advisory archive", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (s *Syncer) downloadArchive(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		if rmErr := os.Remove(dest); rmErr != nil {
			return rmErr
		}
	}

	body, err := s.getBody(ctx, url)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, body, 0o644)
}

// verifyChecksum compares a file's SHA-256 digest against the upstream
// checksum string, formatted "sha256:<hex>".
func verifyChecksum(path, checksum string) (bool, error) {
	const prefix = "sha256:"
	if !strings.HasPrefix(checksum, prefix) {
		return false, fmt.Errorf("unsupported checksum format %q", checksum)
	}
	want, err := hex.DecodeString(checksum[len(prefix):])
	if err != nil {
		return false, fmt.Errorf("decode checksum: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	got := h.Sum(nil)

	if len(got) != len(want) {
		return false, nil
	}
	for i := range got {
		if got[i] != want[i] {
			return false, nil
		}
	}
	return true, nil
}

// unarchive extracts a tar.gz into destDir, rejecting any entry whose path
// would escape destDir — the upstream archive is a trusted vendor feed, but
// path-traversal rejection costs nothing and the original's comment
// explicitly waives this check rather than enforcing it.
func unarchive(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		target := filepath.Join(destDir, hdr.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return fmt.Errorf("tar entry %q escapes destination directory", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(out, tr) // #nosec G110 -- trusted vendor archive, size-bounded by upstream listing
			closeErr := out.Close()
			if copyErr != nil {
				return copyErr
			}
			if closeErr != nil {
				return closeErr
			}
		}
	}
}
