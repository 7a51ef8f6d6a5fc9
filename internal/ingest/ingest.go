// Package ingest is the end-to-end SBOM ingestion pipeline tying the
// component, snapshot, project, advisory, and alert stores together. Per
// spec §4.4's numbered pipeline.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/42ByteLabs/konarr-core/internal/alerts"
	"github.com/42ByteLabs/konarr-core/internal/bom"
	"github.com/42ByteLabs/konarr-core/internal/metrics"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	alertstore "github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/components"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
	"github.com/42ByteLabs/konarr-core/internal/store/snapshots"
)

// Metadata keys written during ingestion, per spec §4.4 step 1-3.
const (
	metaBomType           = "bom.type"
	metaBomVersion        = "bom.version"
	metaDependenciesTotal = "dependencies.total"
	metaBomSHA            = "bom.sha"
	metaBomToolName       = "bom.tool.name"
	metaBomToolVersion    = "bom.tool.version"
	metaBomTool           = "bom.tool"
	metaContainerImage    = "container.image"
	metaContainerVersion  = "container.version"
	metaAdvisoryDesc      = "description"
	metaAdvisoryURLs      = "urls"
)

// Ingester runs the ingestion pipeline for one parsed BOM against one
// project.
type Ingester struct {
	parser     *bom.Dispatcher
	components *components.Store
	snapshots  *snapshots.Store
	projects   *projects.Store
	advisories *advisories.Store
	alerts     *alertstore.Store
	settings   *settings.Store
	calculator *alerts.Calculator
	log        observability.Logger
	metrics    *metrics.Metrics
}

// WithMetrics attaches a Metrics recorder, returning in for chaining.
// Ingesters built without calling this run with metrics disabled.
func (in *Ingester) WithMetrics(m *metrics.Metrics) *Ingester {
	in.metrics = m
	return in
}

// New builds an Ingester.
func New(
	parser *bom.Dispatcher,
	c *components.Store,
	s *snapshots.Store,
	p *projects.Store,
	adv *advisories.Store,
	alt *alertstore.Store,
	st *settings.Store,
	calc *alerts.Calculator,
	log observability.Logger,
) *Ingester {
	if log == nil {
		log = observability.NewStandardLogger("ingest")
	}
	return &Ingester{
		parser: parser, components: c, snapshots: s, projects: p,
		advisories: adv, alerts: alt, settings: st, calculator: calc, log: log,
	}
}

// Ingest parses raw, dedups by content hash, and runs the full pipeline:
// metadata, components, BOM-native vulnerabilities, and the alert
// calculator, finally linking the snapshot to projectID and superseding any
// prior Completed snapshot of that project. Per spec §4.4's dedup policy,
// ingestion always runs even when a snapshot with the same bom.sha already
// exists, since a refreshed advisory database may change its alerts.
func (in *Ingester) Ingest(ctx context.Context, projectID int64, raw []byte) (*snapshots.Snapshot, error) {
	started := time.Now()
	snap, depCount, err := in.ingest(ctx, projectID, raw)
	if in.metrics != nil {
		in.metrics.ObserveIngestion(depCount, time.Since(started), err)
	}
	return snap, err
}

func (in *Ingester) ingest(ctx context.Context, projectID int64, raw []byte) (*snapshots.Snapshot, int, error) {
	parsed, err := in.parser.Parse(raw)
	if err != nil {
		return nil, 0, err
	}
	depCount := len(parsed.Components)

	snap, err := in.findOrCreate(ctx, parsed.SHA256OfInput)
	if err != nil {
		return nil, depCount, err
	}

	if err := in.snapshots.AttachBOM(ctx, snap.ID, raw); err != nil {
		return nil, depCount, in.fail(ctx, snap.ID, err)
	}
	if err := in.indexMetadata(ctx, snap.ID, parsed); err != nil {
		return nil, depCount, in.fail(ctx, snap.ID, err)
	}
	if err := in.indexComponents(ctx, snap.ID, parsed); err != nil {
		return nil, depCount, in.fail(ctx, snap.ID, err)
	}
	if err := in.indexVulnerabilities(ctx, snap.ID, parsed); err != nil {
		return nil, depCount, in.fail(ctx, snap.ID, err)
	}
	if in.calculator != nil {
		if err := in.calculator.Run(ctx); err != nil {
			return nil, depCount, in.fail(ctx, snap.ID, err)
		}
	}

	if err := in.projects.AddSnapshot(ctx, projectID, snap.ID); err != nil {
		return nil, depCount, in.fail(ctx, snap.ID, err)
	}
	if err := in.snapshots.Transition(ctx, snap.ID, snapshots.StateCompleted, nil); err != nil {
		return nil, depCount, err
	}
	if err := in.snapshots.SupersedeEarlierCompleted(ctx, projectID, snap.ID); err != nil {
		return nil, depCount, err
	}

	result, err := in.snapshots.Get(ctx, snap.ID)
	return result, depCount, err
}

func (in *Ingester) findOrCreate(ctx context.Context, sha string) (*snapshots.Snapshot, error) {
	id, found, err := in.snapshots.FindByBomSHA(ctx, sha)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if found {
		return in.snapshots.Get(ctx, id)
	}
	return in.snapshots.CreateEmpty(ctx)
}

// fail transitions the snapshot to Failed with err's message and returns
// the original error, per spec §4.4's failure-handling rule: partial rows
// already written are retained since every upsert here is idempotent.
func (in *Ingester) fail(ctx context.Context, snapshotID int64, cause error) error {
	msg := cause.Error()
	if tErr := in.snapshots.Transition(ctx, snapshotID, snapshots.StateFailed, &msg); tErr != nil {
		in.log.Error("failed to record snapshot failure", map[string]interface{}{
			"snapshot": snapshotID, "transition_error": tErr.Error(), "cause": msg,
		})
	}
	return cause
}

func (in *Ingester) indexMetadata(ctx context.Context, snapshotID int64, parsed bom.BOM) error {
	kv := map[string]string{
		metaBomType:           parsed.SBOMType,
		metaBomVersion:        parsed.SpecVersion,
		metaDependenciesTotal: fmt.Sprintf("%d", len(parsed.Components)),
		metaBomSHA:            parsed.SHA256OfInput,
	}
	for key, value := range kv {
		if err := in.snapshots.SetMetadata(ctx, snapshotID, key, value); err != nil {
			return err
		}
	}

	for _, tool := range parsed.Tools {
		if err := in.snapshots.SetMetadata(ctx, snapshotID, metaBomToolName, tool.Name); err != nil {
			return err
		}
		if tool.Version != "" {
			if err := in.snapshots.SetMetadata(ctx, snapshotID, metaBomToolVersion, tool.Version); err != nil {
				return err
			}
		}
		composite := fmt.Sprintf("%s@%s", tool.Name, tool.Version)
		if err := in.snapshots.SetMetadata(ctx, snapshotID, metaBomTool, composite); err != nil {
			return err
		}
	}

	if parsed.Container.Image != "" {
		if err := in.snapshots.SetMetadata(ctx, snapshotID, metaContainerImage, parsed.Container.Image); err != nil {
			return err
		}
	}
	if parsed.Container.Version != "" {
		if err := in.snapshots.SetMetadata(ctx, snapshotID, metaContainerVersion, parsed.Container.Version); err != nil {
			return err
		}
	}
	return nil
}

func (in *Ingester) indexComponents(ctx context.Context, snapshotID int64, parsed bom.BOM) error {
	for _, c := range parsed.Components {
		if err := in.indexComponent(ctx, snapshotID, c.PURL); err != nil {
			in.log.Warn("skipping unparseable component", map[string]interface{}{
				"purl": c.PURL, "error": err.Error(),
			})
		}
	}
	return nil
}

// indexComponent upserts one component/version/dependency triple from a
// package URL; the dependency row's id is not returned.
func (in *Ingester) indexComponent(ctx context.Context, snapshotID int64, purl string) error {
	comp, ver, err := in.components.FromPURL(purl)
	if err != nil {
		return err
	}
	componentRef, err := in.components.UpsertComponent(ctx, comp.Manager, comp.Namespace, comp.Name)
	if err != nil {
		return err
	}
	versionRef, err := in.components.UpsertVersion(ctx, componentRef, ver.Version)
	if err != nil {
		return err
	}
	_, err = in.snapshots.UpsertDependency(ctx, snapshotID, componentRef, versionRef)
	return err
}

// indexVulnerabilities materializes BOM-native vulnerability findings
// directly into Advisory/Alert rows, bypassing the matcher entirely — per
// spec §4.7's "a BOM that itself carries vulnerabilities bypasses the
// matcher" rule. Only runs when the global security feature is enabled.
func (in *Ingester) indexVulnerabilities(ctx context.Context, snapshotID int64, parsed bom.BOM) error {
	if len(parsed.Vulnerabilities) == 0 {
		return nil
	}
	on, err := in.settings.GetBool(ctx, settings.KeySecurity)
	if err != nil {
		return err
	}
	if !on {
		return nil
	}

	for _, vuln := range parsed.Vulnerabilities {
		source := advisories.Source(vuln.Source)
		if source == "" {
			source = advisories.SourceUnknown
		}
		severity := advisories.Severity(vuln.Severity)
		if severity == "" {
			severity = advisories.SeverityUnknown
		}

		advisoryID, err := in.advisories.Upsert(ctx, vuln.ID, source, severity)
		if err != nil {
			return err
		}
		if vuln.Description != "" {
			if err := in.advisories.SetMetadataIfAbsent(ctx, advisoryID, metaAdvisoryDesc, vuln.Description); err != nil {
				return err
			}
		}
		if vuln.URL != "" {
			if err := in.advisories.SetMetadataIfAbsent(ctx, advisoryID, metaAdvisoryURLs, vuln.URL); err != nil {
				return err
			}
		}

		for _, purl := range vuln.AffectedPURLs {
			comp, ver, err := in.components.FromPURL(purl)
			if err != nil {
				in.log.Warn("skipping unparseable affected component", map[string]interface{}{
					"purl": purl, "vuln": vuln.ID, "error": err.Error(),
				})
				continue
			}
			componentRef, err := in.components.UpsertComponent(ctx, comp.Manager, comp.Namespace, comp.Name)
			if err != nil {
				return err
			}
			versionRef, err := in.components.UpsertVersion(ctx, componentRef, ver.Version)
			if err != nil {
				return err
			}
			dependencyRef, err := in.snapshots.UpsertDependency(ctx, snapshotID, componentRef, versionRef)
			if err != nil {
				return err
			}
			if _, err := in.alerts.Upsert(ctx, vuln.ID, snapshotID, dependencyRef, advisoryID); err != nil {
				return err
			}
		}
	}

	return in.snapshots.SetMetadata(ctx, snapshotID, "security.tools.alerts", "true")
}
