// Package cyclonedx decodes CycloneDX 1.5 and 1.6 JSON documents into the
// intermediate bom.BOM representation. Per spec §4.2 and §6.
package cyclonedx

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/42ByteLabs/konarr-core/internal/bom"
	"github.com/42ByteLabs/konarr-core/internal/catalogue"
	"github.com/42ByteLabs/konarr-core/internal/errs"
)

// document is the wire shape shared by 1.5 and 1.6 — only the set of fields
// a given specVersion actually populates differs, never the Go types.
type document struct {
	Schema          *string        `json:"$schema"`
	BomFormat       *string        `json:"bomFormat"`
	SpecVersion     string         `json:"specVersion"`
	Metadata        *metadata      `json:"metadata"`
	Components      []component    `json:"components"`
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

type metadata struct {
	Timestamp *time.Time `json:"timestamp"`
	Tools     *tools     `json:"tools"`
	Component *component `json:"component"`
}

type tools struct {
	Components []component    `json:"components"`
	Services   []toolService  `json:"services"`
}

type toolService struct {
	Vendor  *string `json:"vendor"`
	Name    *string `json:"name"`
	Version *string `json:"version"`
}

type component struct {
	Type    *string `json:"type"`
	Name    *string `json:"name"`
	Version *string `json:"version"`
	PURL    *string `json:"purl"`
	Author  *string `json:"author"`
}

type vulnerability struct {
	BomRef      string                `json:"bom-ref"`
	ID          string                `json:"id"`
	Source      *vulnSource           `json:"source"`
	Ratings     []vulnRating          `json:"ratings"`
	Description *string               `json:"description"`
	Affects     []vulnComponentRef    `json:"affects"`
}

type vulnSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type vulnRating struct {
	Severity string `json:"severity"`
}

type vulnComponentRef struct {
	Reference string `json:"ref"`
}

// minimalSchema only enforces the handful of top-level fields this package
// actually consumes — it is a shape check, not full CycloneDX validation.
const minimalSchema = `{
  "type": "object",
  "properties": {
    "specVersion": {"type": "string"}
  },
  "required": ["specVersion"]
}`

var schemaLoader = gojsonschema.NewStringLoader(minimalSchema)

// ParserV15 decodes CycloneDX 1.5 documents.
type ParserV15 struct{}

// ParserV16 decodes CycloneDX 1.6 documents.
type ParserV16 struct{}

// Detect reports whether raw declares specVersion "1.5".
func (ParserV15) Detect(raw []byte) bool { return detectVersion(raw) == "1.5" }

// Parse decodes a CycloneDX 1.5 document.
func (ParserV15) Parse(raw []byte) (bom.BOM, error) { return parse(raw, "1.5") }

// Detect reports whether raw declares specVersion "1.6".
func (ParserV16) Detect(raw []byte) bool { return detectVersion(raw) == "1.6" }

// Parse decodes a CycloneDX 1.6 document.
func (ParserV16) Parse(raw []byte) (bom.BOM, error) { return parse(raw, "1.6") }

func detectVersion(raw []byte) string {
	var probe struct {
		SpecVersion string `json:"specVersion"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	return probe.SpecVersion
}

func parse(raw []byte, wantVersion string) (bom.BOM, error) {
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return bom.BOM{}, errs.ParseSBOM(fmt.Sprintf("schema validation error: %v", err))
	}
	if !result.Valid() {
		return bom.BOM{}, errs.ParseSBOM(fmt.Sprintf("document does not match cyclonedx %s shape", wantVersion))
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return bom.BOM{}, errs.ParseSBOM(fmt.Sprintf("decode cyclonedx %s: %v", wantVersion, err))
	}
	if doc.SpecVersion != wantVersion {
		return bom.BOM{}, errs.ParseSBOM(fmt.Sprintf("expected specVersion %s, got %s", wantVersion, doc.SpecVersion))
	}

	out := bom.BOM{
		SBOMType:            "CycloneDX",
		SpecVersion:          doc.SpecVersion,
		GenerationTimestamp:  time.Now().UTC(),
	}

	if doc.Metadata != nil {
		if doc.Metadata.Component != nil {
			c := doc.Metadata.Component
			out.Container.Image = strOrEmpty(c.Name)
			out.Container.Version = strOrEmpty(c.Version)
		}
		if doc.Metadata.Timestamp != nil {
			out.GenerationTimestamp = *doc.Metadata.Timestamp
		}
		if doc.Metadata.Tools != nil {
			for _, t := range doc.Metadata.Tools.Components {
				out.Tools = append(out.Tools, bom.Tool{
					Name:    strOrEmpty(t.Name),
					Version: strOrEmpty(t.Version),
				})
			}
		}
	}

	seen := map[string]bool{}
	for _, c := range doc.Components {
		purl := ""
		switch {
		case c.PURL != nil:
			purl = *c.PURL
		case c.Name != nil:
			// Last-resort synthesis per spec §4.2: a component with a name
			// but no purl is treated as a Debian package.
			purl = fmt.Sprintf("pkg:deb/%s", *c.Name)
		default:
			// No purl and no name: skip with a warning, never fail the parse.
			continue
		}
		if seen[purl] {
			continue
		}
		seen[purl] = true

		bc := bom.Component{PURL: purl, Name: strOrEmpty(c.Name)}
		if c.Type != nil {
			bc.Category = categoryFromCycloneType(*c.Type)
		}
		out.Components = append(out.Components, bc)
	}

	for _, v := range doc.Vulnerabilities {
		severity := "Unknown"
		if len(v.Ratings) > 0 {
			// The original picks the rating whose severity string is
			// longest, which in practice favors "Informational"/"Critical"
			// over shorter default values when a scanner reports several.
			longest := v.Ratings[0]
			for _, r := range v.Ratings[1:] {
				if len(r.Severity) > len(longest.Severity) {
					longest = r
				}
			}
			severity = longest.Severity
		}

		source := "Unknown"
		url := ""
		if v.Source != nil {
			source = v.Source.Name
			url = v.Source.URL
		}

		vuln := bom.Vulnerability{
			ID:          v.ID,
			Source:      source,
			Severity:    severity,
			Description: strOrEmpty(v.Description),
			URL:         url,
		}
		for _, a := range v.Affects {
			vuln.AffectedPURLs = append(vuln.AffectedPURLs, a.Reference)
		}
		out.Vulnerabilities = append(out.Vulnerabilities, vuln)
	}

	return out, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// categoryFromCycloneType maps a CycloneDX component "type" field onto a
// catalogue.Category. The catalogue itself (by purl) is the authoritative
// classifier; this is only a fallback seed used when an SBOM supplies an
// explicit type and no purl-driven classification has run yet.
func categoryFromCycloneType(t string) catalogue.Category {
	switch t {
	case "library":
		return catalogue.Library
	case "application":
		return catalogue.Application
	case "framework":
		return catalogue.Framework
	case "operating-system", "operating_system":
		return catalogue.OperatingSystem
	case "container":
		return catalogue.Container
	case "firmware":
		return catalogue.Firmware
	case "device", "file", "data":
		return catalogue.Unknown
	default:
		return catalogue.Unknown
	}
}
