// Package bom defines the neutral intermediate representation every SBOM
// dialect parser decodes into, plus the sha256-addressed dispatcher that
// picks a dialect parser by detected schema. Per spec §4.2.
package bom

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/42ByteLabs/konarr-core/internal/catalogue"
	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// Tool is one SBOM-generating tool entry.
type Tool struct {
	Name    string
	Version string
}

// Container describes the scanned image, when the SBOM carries one.
type Container struct {
	Image   string
	Version string
	Digest  string
	Tag     string
}

// Component is a single dependency entry in the intermediate BOM.
type Component struct {
	PURL      string
	Name      string
	Category  catalogue.Category
	Signature string
}

// Vulnerability is a tool-reported finding, carried straight through to the
// Alert pipeline when the source BOM supplies its own vulnerability scan.
type Vulnerability struct {
	ID             string
	Source         string
	Severity       string
	Description    string
	URL            string
	AffectedPURLs  []string
}

// BOM is the neutral intermediate representation every dialect decodes into.
type BOM struct {
	SBOMType            string
	SpecVersion         string
	SHA256OfInput       string
	GenerationTimestamp time.Time
	Tools               []Tool
	Container           Container
	Components          []Component
	Vulnerabilities     []Vulnerability
}

// Parser decodes raw bytes of one specific SBOM dialect/version into a BOM.
type Parser interface {
	// Detect reports whether raw looks like this parser's dialect, based on
	// a cheap top-level field probe (no full decode).
	Detect(raw []byte) bool
	Parse(raw []byte) (BOM, error)
}

// Dispatcher tries each registered Parser against detected schema, in
// registration order, and computes the content-address hash used for
// ingestion dedup before handing off to the matching parser.
type Dispatcher struct {
	parsers []Parser
}

// NewDispatcher builds a Dispatcher over the given dialect parsers.
func NewDispatcher(parsers ...Parser) *Dispatcher {
	return &Dispatcher{parsers: parsers}
}

// Parse computes sha256(raw), selects a dialect parser via Detect, and
// returns the decoded BOM with its content hash attached.
func (d *Dispatcher) Parse(raw []byte) (BOM, error) {
	sum := sha256.Sum256(raw)
	sha := hex.EncodeToString(sum[:])

	// A cheap top-level probe catches malformed-JSON inputs early with a
	// ParseSBOM error, matching spec §4.2 rather than falling through every
	// registered parser on garbage bytes.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return BOM{}, errs.ParseSBOM(fmt.Sprintf("malformed json: %v", err))
	}

	for _, p := range d.parsers {
		if !p.Detect(raw) {
			continue
		}
		out, err := p.Parse(raw)
		if err != nil {
			return BOM{}, err
		}
		out.SHA256OfInput = sha
		return out, nil
	}
	return BOM{}, errs.ParseSBOM("no schema version recognized")
}
