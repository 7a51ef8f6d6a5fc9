package sync

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/42ByteLabs/konarr-core/internal/store/settings"
)

func newSettingsMock(t *testing.T) (*settings.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return settings.New(sqlx.NewDb(db, "postgres")), mock
}

func buildTarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func TestVerifyChecksum_MatchesAndMismatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tar.gz")
	data := []byte("archive contents")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	ok, err := verifyChecksum(path, checksumOf(data))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = verifyChecksum(path, checksumOf([]byte("different")))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnarchive_ExtractsRegularFiles(t *testing.T) {
	data := buildTarGz(t, map[string]string{"vulnerability.db": "sqlite-bytes-stand-in"})
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "vulnerability.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, data, 0o644))

	destDir := filepath.Join(dir, "5")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	require.NoError(t, unarchive(archivePath, destDir))

	contents, err := os.ReadFile(filepath.Join(destDir, "vulnerability.db"))
	require.NoError(t, err)
	require.Equal(t, "sqlite-bytes-stand-in", string(contents))
}

func TestUnarchive_RejectsPathTraversal(t *testing.T) {
	data := buildTarGz(t, map[string]string{"../../evil.txt": "escape"})
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "vulnerability.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, data, 0o644))

	destDir := filepath.Join(dir, "5")
	require.NoError(t, os.MkdirAll(destDir, 0o755))
	err := unarchive(archivePath, destDir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes destination directory")
}

type fakeDoer struct {
	listing     []byte
	archive     []byte
	archiveURL  string
	listingHits int
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	switch req.URL.String() {
	case listingURL:
		f.listingHits++
		body = f.listing
	case f.archiveURL:
		body = f.archive
	default:
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func TestSync_InstallsWhenLocalDatabaseMissing(t *testing.T) {
	archiveData := buildTarGz(t, map[string]string{"vulnerability.db": "fresh-db-bytes"})
	archiveURL := "https://example.test/vulnerability-db_v5.tar.gz"

	listing := ListingResponse{Available: map[int][]ListingEntry{
		5: {{
			Built:    time.Now(),
			Checksum: checksumOf(archiveData),
			URL:      archiveURL,
			Version:  5,
		}},
	}}
	listingJSON, err := json.Marshal(listing)
	require.NoError(t, err)

	doer := &fakeDoer{listing: listingJSON, archive: archiveData, archiveURL: archiveURL}
	baseDir := t.TempDir()

	s := New(doer, baseDir, nil, nil)
	updated, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.True(t, updated)

	contents, err := os.ReadFile(filepath.Join(baseDir, "5", "vulnerability.db"))
	require.NoError(t, err)
	require.Equal(t, "fresh-db-bytes", string(contents))
}

func TestSync_SkipsWhenChecksumInvalid(t *testing.T) {
	archiveData := buildTarGz(t, map[string]string{"vulnerability.db": "fresh-db-bytes"})
	archiveURL := "https://example.test/vulnerability-db_v5.tar.gz"

	listing := ListingResponse{Available: map[int][]ListingEntry{
		5: {{
			Built:    time.Now(),
			Checksum: checksumOf([]byte("not the archive")),
			URL:      archiveURL,
			Version:  5,
		}},
	}}
	listingJSON, err := json.Marshal(listing)
	require.NoError(t, err)

	doer := &fakeDoer{listing: listingJSON, archive: archiveData, archiveURL: archiveURL}
	baseDir := t.TempDir()

	s := New(doer, baseDir, nil, nil)
	_, err = s.Sync(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum verification failed")
}

func TestSync_ChecksumFailureResetsPollingAndLeavesUpdatedUnadvanced(t *testing.T) {
	archiveData := buildTarGz(t, map[string]string{"vulnerability.db": "fresh-db-bytes"})
	archiveURL := "https://example.test/vulnerability-db_v5.tar.gz"

	listing := ListingResponse{Available: map[int][]ListingEntry{
		5: {{
			Built:    time.Now(),
			Checksum: checksumOf([]byte("not the archive")),
			URL:      archiveURL,
			Version:  5,
		}},
	}}
	listingJSON, err := json.Marshal(listing)
	require.NoError(t, err)

	doer := &fakeDoer{listing: listingJSON, archive: archiveData, archiveURL: archiveURL}
	baseDir := t.TempDir()

	st, mock := newSettingsMock(t)
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeySecurityAdvisoriesPolling), string(settings.TypeToggle), "disabled").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(doer, baseDir, st, nil)
	_, err = s.Sync(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum verification failed")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSync_SuccessAdvancesUpdatedTimestamp(t *testing.T) {
	archiveData := buildTarGz(t, map[string]string{"vulnerability.db": "fresh-db-bytes"})
	archiveURL := "https://example.test/vulnerability-db_v5.tar.gz"

	listing := ListingResponse{Available: map[int][]ListingEntry{
		5: {{
			Built:    time.Now(),
			Checksum: checksumOf(archiveData),
			URL:      archiveURL,
			Version:  5,
		}},
	}}
	listingJSON, err := json.Marshal(listing)
	require.NoError(t, err)

	doer := &fakeDoer{listing: listingJSON, archive: archiveData, archiveURL: archiveURL}
	baseDir := t.TempDir()

	st, mock := newSettingsMock(t)
	mock.ExpectExec("INSERT INTO settings").
		WithArgs(string(settings.KeySecurityAdvisoriesUpdated), string(settings.TypeDatetime), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := New(doer, baseDir, st, nil)
	updated, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.True(t, updated)

	require.NoError(t, mock.ExpectationsWereMet())
}
