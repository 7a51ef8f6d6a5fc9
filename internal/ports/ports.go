// Package ports declares the external interfaces this core consumes but
// never implements the business end of: invoking SBOM-producing tools,
// storing legacy SBOM blobs, and making outbound HTTP calls. Per spec §1,
// the concrete tool binaries, container runtimes, and transport layer are
// out of scope — only the seam this core calls through lives here.
package ports

import (
	"context"
	"io"
	"net/http"
)

// ToolRunner invokes an external SBOM-producing binary (a syft/trivy/grype
// analogue) against a target — a container image reference or a local
// path — and returns its raw report bytes for internal/bom to parse.
// Grounded on original_source/src/tools/{syft,trivy,grype}.rs's Tool trait;
// the process-exec details stay outside this module (spec §9).
type ToolRunner interface {
	// Name identifies the tool, e.g. "syft" or "grype", for logging/metrics.
	Name() string
	// Run executes the tool against target and returns its report.
	Run(ctx context.Context, target string) ([]byte, error)
}

// BlobStore persists and retrieves legacy on-disk SBOM blobs during the
// migration path described in spec §9. Implementations live in
// internal/blobstore (local-filesystem and S3-backed).
type BlobStore interface {
	// Put stores a blob under key, returning once it is durably written.
	Put(ctx context.Context, key string, body io.Reader) error
	// Get opens a blob by key; callers must close the returned reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a blob; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// HTTPDoer is the *http.Client-shaped seam internal/sync's advisory
// listing/download calls depend on, so tests can substitute a fake
// transport instead of hitting the network.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var _ HTTPDoer = (*http.Client)(nil)
