// Package purl parses and renders package URLs (the pkg:type/namespace/name@version
// grammar: https://github.com/package-url/purl-spec), which is how every
// SBOM dialect identifies a software component.
package purl

import (
	"fmt"
	"net/url"
	"strings"
)

// PURL is a parsed package URL. Qualifiers and subpath are accepted on parse
// but dropped on render: nothing downstream of the component store needs them.
type PURL struct {
	Type      string
	Namespace string
	Name      string
	Version   string
}

// Parse decodes a purl string of the form pkg:type/namespace/name@version.
// Namespace and version are optional; a leading "v" in the version is
// stripped, matching how most ecosystems tag releases (v1.2.3 -> 1.2.3).
func Parse(s string) (PURL, error) {
	const scheme = "pkg:"
	if !strings.HasPrefix(s, scheme) {
		return PURL{}, fmt.Errorf("purl: missing %q scheme in %q", scheme, s)
	}
	rest := s[len(scheme):]

	if idx := strings.IndexByte(rest, '?'); idx != -1 {
		rest = rest[:idx]
	}
	if idx := strings.IndexByte(rest, '#'); idx != -1 {
		rest = rest[:idx]
	}

	var version string
	if idx := strings.LastIndexByte(rest, '@'); idx != -1 {
		version = rest[idx+1:]
		rest = rest[:idx]
	}

	segments := strings.Split(rest, "/")
	segments = removeEmpty(segments)
	if len(segments) == 0 {
		return PURL{}, fmt.Errorf("purl: no type in %q", s)
	}

	p := PURL{Type: strings.ToLower(segments[0])}
	switch len(segments) {
	case 1:
		return PURL{}, fmt.Errorf("purl: no name in %q", s)
	case 2:
		p.Name = segments[1]
	default:
		p.Namespace = strings.Join(segments[1:len(segments)-1], "/")
		p.Name = segments[len(segments)-1]
	}

	decodedName, err := url.PathUnescape(p.Name)
	if err == nil {
		p.Name = decodedName
	}
	if p.Namespace != "" {
		if decodedNS, err := url.PathUnescape(p.Namespace); err == nil {
			p.Namespace = decodedNS
		}
	}

	if version != "" {
		version = strings.TrimPrefix(version, "v")
		p.Version = version
	} else {
		p.Version = "0.0.0"
	}

	return p, nil
}

// String renders the purl back to pkg:type/namespace/name form, omitting
// the version (component identity never includes it; ComponentVersion does).
func (p PURL) String() string {
	var b strings.Builder
	b.WriteString("pkg:")
	b.WriteString(p.Type)
	b.WriteByte('/')
	if p.Namespace != "" {
		b.WriteString(p.Namespace)
		b.WriteByte('/')
	}
	b.WriteString(p.Name)
	return b.String()
}

func removeEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
