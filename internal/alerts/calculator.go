// Package alerts rolls up per-snapshot Alert counts into snapshot metadata,
// bubbles them up through the project tree, and updates the global
// statistics settings, per spec §4.8.
package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/42ByteLabs/konarr-core/internal/errs"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	alertstore "github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
)

// Summary counts Vulnerable alerts by severity.
type Summary map[advisories.Severity]int64

// severityOrder fixes the iteration order used when writing global settings,
// so the total-mismatch check below is reproducible.
var severityOrder = []advisories.Severity{
	advisories.SeverityCritical,
	advisories.SeverityHigh,
	advisories.SeverityMedium,
	advisories.SeverityLow,
	advisories.SeverityInformational,
	advisories.SeverityUnmaintained,
	advisories.SeverityMalware,
	advisories.SeverityUnknown,
}

func severityGlobalKey(s advisories.Severity) settings.Key {
	switch s {
	case advisories.SeverityCritical:
		return settings.KeySecurityAlertsCritical
	case advisories.SeverityHigh:
		return settings.KeySecurityAlertsHigh
	case advisories.SeverityMedium:
		return settings.KeySecurityAlertsMedium
	case advisories.SeverityLow:
		return settings.KeySecurityAlertsLow
	case advisories.SeverityInformational:
		return settings.KeySecurityAlertsInformational
	case advisories.SeverityUnmaintained:
		return settings.KeySecurityAlertsUnmaintained
	case advisories.SeverityMalware:
		return settings.KeySecurityAlertsMalware
	default:
		return settings.KeySecurityAlertsUnknown
	}
}

// Calculator computes and persists alert summaries at the snapshot, group,
// and global levels.
type Calculator struct {
	projects  *projects.Store
	snapshots *snapshots.Store
	alerts    *alertstore.Store
	settings  *settings.Store
	log       observability.Logger
}

// New builds a Calculator.
func New(p *projects.Store, s *snapshots.Store, a *alertstore.Store, st *settings.Store, log observability.Logger) *Calculator {
	if log == nil {
		log = observability.NewStandardLogger("alerts")
	}
	return &Calculator{projects: p, snapshots: s, alerts: a, settings: st, log: log}
}

// Run computes every Container project's latest-snapshot alert summary,
// bubbles direct children up into their Server/group's latest snapshot, and
// finally rolls the global total into the security.alerts.* settings.
func (c *Calculator) Run(ctx context.Context) error {
	on, err := c.settings.GetBool(ctx, settings.KeySecurity)
	if err != nil {
		return fmt.Errorf("check security feature flag: %w", err)
	}
	if !on {
		c.log.Info("security feature disabled, skipping alert calculation", nil)
		return nil
	}

	containers, err := c.projects.List(ctx, projects.ListFilter{Type: projects.TypeContainer, Limit: 1000})
	if err != nil {
		return fmt.Errorf("list container projects: %w", err)
	}

	global := Summary{}
	var total int64
	childSummaries := make(map[int64]Summary, len(containers))

	for _, p := range containers {
		snapshotID, err := c.projects.FetchLatestSnapshotID(ctx, p.ID)
		if err != nil {
			c.log.Debug("project has no snapshot yet, skipping", map[string]interface{}{"project": p.Name})
			continue
		}

		summary, err := c.snapshotSummary(ctx, snapshotID)
		if err != nil {
			return fmt.Errorf("summarize snapshot %d: %w", snapshotID, err)
		}
		if err := c.writeSnapshotSummary(ctx, snapshotID, summary); err != nil {
			return fmt.Errorf("write snapshot summary %d: %w", snapshotID, err)
		}

		for sev, n := range summary {
			global[sev] += n
			total += n
		}
		childSummaries[p.ID] = summary
	}

	if err := c.rollupGroups(ctx, childSummaries); err != nil {
		return err
	}

	var totalCheck int64
	for _, sev := range severityOrder {
		value := global[sev]
		totalCheck += value
		if err := c.settings.SetStatistic(ctx, severityGlobalKey(sev), value); err != nil {
			return fmt.Errorf("write global severity setting: %w", err)
		}
	}
	if err := c.settings.SetStatistic(ctx, settings.KeySecurityAlertsTotal, total); err != nil {
		return fmt.Errorf("write global total setting: %w", err)
	}

	if totalCheck != total {
		c.log.Error("total alert count mismatch", map[string]interface{}{
			"total_check": totalCheck, "total": total,
		})
	}

	return nil
}

// snapshotSummary counts a snapshot's currently-Vulnerable alerts by
// advisory severity.
func (c *Calculator) snapshotSummary(ctx context.Context, snapshotID int64) (Summary, error) {
	vulnerable, err := c.alerts.ListVulnerable(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	summary := Summary{}
	for _, a := range vulnerable {
		summary[advisories.Severity(a.Severity)]++
	}
	return summary, nil
}

// writeSnapshotSummary persists security.alerts.{severity} and
// security.alerts.total onto the snapshot's own metadata, mirroring the
// dotted-key convention spec §4.8 inherited from the Settings Store.
func (c *Calculator) writeSnapshotSummary(ctx context.Context, snapshotID int64, summary Summary) error {
	var total int64
	for sev, n := range summary {
		key := fmt.Sprintf("security.alerts.%s", strings.ToLower(string(sev)))
		if err := c.snapshots.SetMetadata(ctx, snapshotID, key, strconv.FormatInt(n, 10)); err != nil {
			return err
		}
		total += n
	}
	return c.snapshots.SetMetadata(ctx, snapshotID, "security.alerts.total", strconv.FormatInt(total, 10))
}

// rollupGroups sums each Server-type project's direct Container children
// (one level only — grandchildren are not walked, matching the original's
// known limitation, per the Open Question decision in DESIGN.md) onto the
// group's own latest snapshot.
func (c *Calculator) rollupGroups(ctx context.Context, childSummaries map[int64]Summary) error {
	groups, err := c.projects.List(ctx, projects.ListFilter{Type: projects.TypeServer, Limit: 1000})
	if err != nil {
		return fmt.Errorf("list group projects: %w", err)
	}

	for _, group := range groups {
		snapshotID, err := c.ensureGroupSnapshot(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("ensure snapshot for group %d: %w", group.ID, err)
		}

		children, err := c.projects.FetchChildren(ctx, group.ID)
		if err != nil {
			return fmt.Errorf("fetch children of group %d: %w", group.ID, err)
		}

		groupSummary := Summary{}
		for _, child := range children {
			cs, ok := childSummaries[child.ID]
			if !ok {
				continue
			}
			for sev, n := range cs {
				groupSummary[sev] += n
			}
		}

		if err := c.writeSnapshotSummary(ctx, snapshotID, groupSummary); err != nil {
			return fmt.Errorf("write group summary %d: %w", group.ID, err)
		}
	}
	return nil
}

// ensureGroupSnapshot returns a Server project's latest snapshot id,
// synthesizing an empty one and linking it on first use if the group has
// never had a snapshot before. A Server project never receives SBOM uploads
// directly — it only reports on its Container children — so without this it
// would never have anywhere to write rollup metadata, per spec §4.5.
func (c *Calculator) ensureGroupSnapshot(ctx context.Context, groupID int64) (int64, error) {
	snapshotID, err := c.projects.FetchLatestSnapshotID(ctx, groupID)
	if err == nil {
		return snapshotID, nil
	}
	if !errs.IsNotFound(err) {
		return 0, err
	}

	snap, err := c.snapshots.CreateEmpty(ctx)
	if err != nil {
		return 0, fmt.Errorf("synthesize snapshot for group %d: %w", groupID, err)
	}
	if err := c.projects.AddSnapshot(ctx, groupID, snap.ID); err != nil {
		return 0, fmt.Errorf("link synthesized snapshot to group %d: %w", groupID, err)
	}
	return snap.ID, nil
}
