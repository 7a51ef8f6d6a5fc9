// Package catalogue classifies a parsed package URL into a component
// category. The result depends only on (manager, namespace, name) and the
// embedded table. Classify does no I/O unless a shared remote cache has been
// attached with WithRemoteCache, in which case lookups also go through that
// cache.
package catalogue

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/42ByteLabs/konarr-core/internal/cache"
	"github.com/42ByteLabs/konarr-core/internal/purl"
)

// entries is the exact/wildcard purl table. Keys follow the purl grammar
// used elsewhere in this package: "pkg:manager/name" (no namespace) or
// "pkg:*/name" / "pkg:manager/*" for wildcards. The table is intentionally
// small — it only needs to cover identities the name-based heuristics in
// classifyFallback can't resolve on their own (cross-ecosystem libraries
// that share a name with something unrelated).
var entries = map[string]Category{
	"pkg:*/openssl":    CryptographyLibrary,
	"pkg:*/libssl":     CryptographyLibrary,
	"pkg:*/bzip2":      CompressionLibrary,
	"pkg:*/zlib":       CompressionLibrary,
	"pkg:*/nginx":      Application,
	"pkg:*/envoy":      Middleware,
	"pkg:*/postgresql": Database,
	"pkg:*/mysql":      Database,
	"pkg:*/redis":      Database,
	"pkg:*/mongodb":    Database,
}

// Catalogue resolves categories, backed by an LRU cache since the same
// handful of distinct (manager, namespace, name) triples recur across every
// container in a fleet.
type Catalogue struct {
	cache  *lru.Cache[string, Category]
	remote *cache.CatalogueCache
}

// New builds a Catalogue with a cache sized for a typical fleet's distinct
// component count.
func New() *Catalogue {
	c, err := lru.New[string, Category](4096)
	if err != nil {
		// Only returns an error for a non-positive size, which 4096 never is.
		panic(fmt.Sprintf("catalogue: unreachable lru.New error: %v", err))
	}
	return &Catalogue{cache: c}
}

// WithRemoteCache attaches a shared Redis-backed CatalogueCache so a
// resolution computed by one process instance is visible to every other
// instance in the fleet, not just its own in-process LRU. Optional: a
// Catalogue built without calling this only ever uses its local LRU.
func (c *Catalogue) WithRemoteCache(remote *cache.CatalogueCache) *Catalogue {
	c.remote = remote
	return c
}

// Classify returns the category for a (manager, namespace, name) triple.
// Resolution order, per spec §4.1: exact purl -> manager-wildcard ->
// name-wildcard -> manager-specific fallback heuristics -> Library. Lookup
// order across cache tiers: local LRU, then the shared remote cache (if
// attached), before falling through to computing a fresh classification.
func (c *Catalogue) Classify(manager, namespace, name string) Category {
	p := purl.PURL{Type: strings.ToLower(manager), Namespace: namespace, Name: name}
	key := p.String()

	if cat, ok := c.cache.Get(key); ok {
		return cat
	}

	if c.remote != nil {
		if v, found, err := c.remote.Get(context.Background(), key); err == nil && found {
			cat := Category(v)
			c.cache.Add(key, cat)
			return cat
		}
	}

	cat := c.classify(p)
	c.cache.Add(key, cat)
	if c.remote != nil {
		_ = c.remote.Set(context.Background(), key, string(cat))
	}
	return cat
}

func (c *Catalogue) classify(p purl.PURL) Category {
	if cat, ok := entries[p.String()]; ok {
		return cat
	}
	if cat, ok := entries[fmt.Sprintf("pkg:*/%s", p.Name)]; ok {
		return cat
	}
	if cat, ok := entries[fmt.Sprintf("pkg:%s/*", p.Type)]; ok {
		return cat
	}
	return classifyFallback(p)
}

// classifyFallback mirrors the manager-specific name tables: for APK/DEB
// packages the package name alone (namespace is irrelevant for OS package
// managers) identifies OS base images, compilers/interpreters, package
// managers themselves, crypto libraries, databases, and a handful of common
// applications. Go modules get two hard-coded namespace exceptions. Generic
// purls default to Application since that manager is reserved for
// synthesized binaries, not libraries. Everything else defaults to Library.
func classifyFallback(p purl.PURL) Category {
	switch p.Type {
	case "apk", "deb":
		return classifyOSPackage(strings.ToLower(p.Name))
	case "go", "golang":
		if p.Namespace == "golang.org/x" || p.Namespace == "cloud.google.com" {
			switch p.Name {
			case "go":
				return ProgrammingLanguage
			case "crypto":
				return CryptographyLibrary
			}
		}
		return Library
	case "generic":
		return Application
	default:
		return Library
	}
}

func classifyOSPackage(name string) Category {
	switch name {
	case "alpine", "alpine-linux", "debian", "debian-linux", "ubuntu", "ubuntu-linux",
		"redhat", "fedora", "centos", "centos-linux", "arch", "arch-linux":
		return OperatingSystem
	case "python", "python3", "node", "nodejs", "ruby", "rustc", "rust", "go",
		"java", "javac", "kotlinc", "gcc", "g++", "gpp", "dotnet", "csharp",
		"c", "cpp", "php83", "perl", "bash", "sh":
		return ProgrammingLanguage
	case "apk", "apk-tools", "deb", "dpkg", "rpm", "cargo", "npm", "pip",
		"composer", "maven", "nuget", "gradle", "gem":
		return PackageManager
	case "openssl", "libssl", "libssl3", "libcrypto", "libcrypto3", "libssl-dev",
		"libcrypto-dev", "argon2-libs", "ssl_client":
		return CryptographyLibrary
	case "mysql", "mariadb", "postgresql", "sqlite", "mongodb", "redis", "cassandra":
		return Database
	case "curl", "wget", "git", "grep", "jq", "nginx":
		return Application
	case "apr", "apr-util", "busybox", "busybox-binsh":
		return OperatingEnvironment
	default:
		return Library
	}
}
