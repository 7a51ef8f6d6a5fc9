// Package matcher runs a snapshot's dependencies against the local
// vulnerability.db mirror and turns hits into Advisory/Alert rows, per spec
// §4.7.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/42ByteLabs/konarr-core/internal/advisorydb"
	"github.com/42ByteLabs/konarr-core/internal/metrics"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	"github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
)

// Matcher ties the snapshot/advisory/alert stores to the local grype-style
// vulnerability database.
type Matcher struct {
	db         *advisorydb.DB
	advisories *advisories.Store
	alerts     *alerts.Store
	log        observability.Logger
	metrics    *metrics.Metrics
}

// New builds a Matcher.
func New(db *advisorydb.DB, adv *advisories.Store, alt *alerts.Store, log observability.Logger) *Matcher {
	if log == nil {
		log = observability.NewStandardLogger("matcher")
	}
	return &Matcher{db: db, advisories: adv, alerts: alt, log: log}
}

// WithMetrics attaches a Metrics recorder, returning m for chaining. Matchers
// built without calling this run with metrics disabled.
func (m *Matcher) WithMetrics(mx *metrics.Metrics) *Matcher {
	m.metrics = mx
	return m
}

// Run matches every dependency of a snapshot against the vulnerability
// database, following spec §4.7's eight steps: skip unparsable versions,
// lookup by package name (manager-agnostic — see the Open Question decision
// in DESIGN.md), check each candidate's version constraint, route CVE-/GHSA-
// IDs to their metadata namespace, upsert the advisory, backfill metadata
// only where absent, upsert the alert, and finally close every alert of this
// snapshot that wasn't re-confirmed.
func (m *Matcher) Run(ctx context.Context, snapshotID int64, deps []snapshots.Dependency) error {
	started := time.Now()
	var keepAlertIDs []int64

	for _, dep := range deps {
		if dep.Version == "" || dep.Version == "0.0.0" {
			m.log.Debug("skipping dependency with unknown version", map[string]interface{}{
				"component": dep.ComponentName,
			})
			continue
		}

		candidates, err := m.db.FindByPackageName(ctx, dep.ComponentName)
		if err != nil {
			return fmt.Errorf("find by package name %s: %w", dep.ComponentName, err)
		}

		for _, candidate := range candidates {
			if candidate.VersionConstraint == "" {
				continue
			}

			ok, err := SatisfiesConstraint(dep.ComponentManager, dep.Version, candidate.VersionConstraint)
			if err != nil {
				m.log.Debug("unparsable version constraint, skipping", map[string]interface{}{
					"vuln": candidate.ID, "constraint": candidate.VersionConstraint, "error": err.Error(),
				})
				continue
			}
			if !ok {
				continue
			}

			alertID, err := m.recordHit(ctx, snapshotID, dep, candidate)
			if err != nil {
				return err
			}
			keepAlertIDs = append(keepAlertIDs, alertID)
		}
	}

	if err := m.alerts.MarkSecureExcept(ctx, snapshotID, keepAlertIDs); err != nil {
		return fmt.Errorf("mark secure: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ObserveMatcherRun(time.Since(started), len(keepAlertIDs), 0)
	}
	return nil
}

// recordHit upserts the advisory (and its metadata, if not already present)
// and the alert linking it to this dependency, returning the alert's ID.
func (m *Matcher) recordHit(ctx context.Context, snapshotID int64, dep snapshots.Dependency, candidate advisorydb.Vulnerability) (int64, error) {
	meta, err := m.db.Metadata(ctx, candidate.ID)
	if err != nil {
		return 0, fmt.Errorf("metadata for %s: %w", candidate.ID, err)
	}

	source := advisories.SourceUnknown
	severity := advisories.SeverityUnknown
	if meta != nil {
		source = meta.Source()
		severity = advisorySeverity(meta.Severity)
	}

	advisoryID, err := m.advisories.Upsert(ctx, candidate.ID, source, severity)
	if err != nil {
		return 0, fmt.Errorf("upsert advisory %s: %w", candidate.ID, err)
	}

	if err := m.backfillMetadata(ctx, advisoryID, candidate.ID, source, meta); err != nil {
		return 0, err
	}

	alertID, err := m.alerts.Upsert(ctx, candidate.ID, snapshotID, dep.ID, advisoryID)
	if err != nil {
		return 0, fmt.Errorf("upsert alert %s: %w", candidate.ID, err)
	}
	return alertID, nil
}

func (m *Matcher) backfillMetadata(ctx context.Context, advisoryID int64, vulnID string, source advisories.Source, meta *advisorydb.Metadata) error {
	if meta != nil && meta.Description != "" {
		if err := m.setIfAbsent(ctx, advisoryID, "description", meta.Description); err != nil {
			return err
		}
	}
	if meta != nil && meta.CVSS != nil {
		if err := m.setIfAbsent(ctx, advisoryID, "cvss", *meta.CVSS); err != nil {
			return err
		}
	}

	url := ""
	if meta != nil && meta.URLs != nil && *meta.URLs != "" {
		url = *meta.URLs
	} else {
		url = synthesizeURL(source, vulnID)
	}
	if url != "" {
		if err := m.setIfAbsent(ctx, advisoryID, "urls", url); err != nil {
			return err
		}
	}

	return m.setIfAbsent(ctx, advisoryID, "data.source", "GrypeDB")
}

func (m *Matcher) setIfAbsent(ctx context.Context, advisoryID int64, key, value string) error {
	has, err := m.advisories.HasMetadata(ctx, advisoryID, key)
	if err != nil {
		return fmt.Errorf("check metadata %s: %w", key, err)
	}
	if has {
		return nil
	}
	return m.advisories.SetMetadataIfAbsent(ctx, advisoryID, key, value)
}

// synthesizeURL builds a canonical advisory link when grype-db shipped no
// url of its own, per spec §4.7's NVD/GHAD URL-synthesis rule.
func synthesizeURL(source advisories.Source, vulnID string) string {
	switch source {
	case advisories.SourceNVD:
		return fmt.Sprintf("https://nvd.nist.gov/vuln/detail/%s", vulnID)
	case advisories.SourceGHAD:
		return fmt.Sprintf("https://github.com/advisories/%s", vulnID)
	default:
		return ""
	}
}

func advisorySeverity(raw string) advisories.Severity {
	switch strings.ToLower(raw) {
	case "critical":
		return advisories.SeverityCritical
	case "high":
		return advisories.SeverityHigh
	case "medium":
		return advisories.SeverityMedium
	case "low":
		return advisories.SeverityLow
	case "negligible", "informational":
		return advisories.SeverityInformational
	default:
		return advisories.SeverityUnknown
	}
}

// compareSemverLoose compares two arbitrary version strings via semver,
// tolerating a missing "v" prefix; if either side is not semver, the two raw
// strings are compared lexically with strings.Compare.
func compareSemverLoose(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return va.Compare(vb)
}

// SatisfiesConstraint reports whether version satisfies constraint for the
// given package manager. Debian and RPM use their own range syntax
// evaluated against compareVersions; every other manager is treated as
// semver via Masterminds/semver/v3.
func SatisfiesConstraint(manager, version, constraint string) (bool, error) {
	switch strings.ToLower(manager) {
	case "deb", "dpkg", "apt", "rpm", "dnf", "yum":
		return satisfiesRangeConstraint(manager, version, constraint)
	default:
		v, err := semver.NewVersion(version)
		if err != nil {
			return false, fmt.Errorf("parse version %q: %w", version, err)
		}
		c, err := semver.NewConstraint(constraint)
		if err != nil {
			return false, fmt.Errorf("parse constraint %q: %w", constraint, err)
		}
		return c.Check(v), nil
	}
}

// satisfiesRangeConstraint evaluates a comma-separated AND of "<op> version"
// clauses (e.g. ">=1.2.3, <2.0.0") against the per-manager comparator.
func satisfiesRangeConstraint(manager, version, constraint string) (bool, error) {
	clauses := strings.Split(constraint, ",")
	for _, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		op, target, err := splitClause(clause)
		if err != nil {
			return false, err
		}
		cmp := compareVersions(manager, version, target)
		if !evalOp(op, cmp) {
			return false, nil
		}
	}
	return true, nil
}

func splitClause(clause string) (op, version string, err error) {
	for _, candidate := range []string{">=", "<=", "==", "!=", ">", "<", "="} {
		if strings.HasPrefix(clause, candidate) {
			return candidate, strings.TrimSpace(clause[len(candidate):]), nil
		}
	}
	return "", "", fmt.Errorf("unsupported constraint clause %q", clause)
}

func evalOp(op string, cmp int) bool {
	switch op {
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case "==", "=":
		return cmp == 0
	case "!=":
		return cmp != 0
	default:
		return false
	}
}
