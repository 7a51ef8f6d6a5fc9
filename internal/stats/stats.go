// Package stats periodically recomputes the project, dependency, and
// advisory counters surfaced as ServerSettings, per spec §4.9's Statistics
// Rollup task.
//
// User statistics (stats.users.*) exist in the key vocabulary but are
// deliberately never written here: this core has no Users/auth store (see
// DESIGN.md's dropped-dependency list), so those keys stay at their seeded
// zero value.
package stats

import (
	"context"
	"fmt"

	"github.com/42ByteLabs/konarr-core/internal/catalogue"
	"github.com/42ByteLabs/konarr-core/internal/observability"
	"github.com/42ByteLabs/konarr-core/internal/store/advisories"
	alertstore "github.com/42ByteLabs/konarr-core/internal/store/alerts"
	"github.com/42ByteLabs/konarr-core/internal/store/components"
	"github.com/42ByteLabs/konarr-core/internal/store/projects"
	"github.com/42ByteLabs/konarr-core/internal/store/settings"
)

// Rollup recomputes and persists the project/dependency/advisory counters.
type Rollup struct {
	projects   *projects.Store
	components *components.Store
	alerts     *alertstore.Store
	advisories *advisories.Store
	settings   *settings.Store
	log        observability.Logger
}

// New builds a Rollup.
func New(p *projects.Store, c *components.Store, a *alertstore.Store, adv *advisories.Store, st *settings.Store, log observability.Logger) *Rollup {
	if log == nil {
		log = observability.NewStandardLogger("stats")
	}
	return &Rollup{projects: p, components: c, alerts: a, advisories: adv, settings: st, log: log}
}

// Run recomputes every counter and writes it to its Statistics-typed
// setting. Sub-rollups run one after another; a failure in one aborts the
// rest of the run, and counters already written before the failure are kept.
func (r *Rollup) Run(ctx context.Context) error {
	if err := r.projectStatistics(ctx); err != nil {
		return fmt.Errorf("project statistics: %w", err)
	}
	if err := r.dependencyStatistics(ctx); err != nil {
		return fmt.Errorf("dependency statistics: %w", err)
	}
	if err := r.advisoryStatistics(ctx); err != nil {
		return fmt.Errorf("advisory statistics: %w", err)
	}
	r.log.Info("statistics rollup complete", nil)
	return nil
}

// projectStatistics counts projects by status and by type.
func (r *Rollup) projectStatistics(ctx context.Context) error {
	total, err := r.projects.CountTotal(ctx)
	if err != nil {
		return err
	}
	active, err := r.projects.CountByStatus(ctx, projects.StatusActive)
	if err != nil {
		return err
	}
	inactive, err := r.projects.CountByStatus(ctx, projects.StatusInactive)
	if err != nil {
		return err
	}
	archived, err := r.projects.CountByStatus(ctx, projects.StatusArchived)
	if err != nil {
		return err
	}
	servers, err := r.projects.CountByType(ctx, projects.TypeServer)
	if err != nil {
		return err
	}
	groups, err := r.projects.CountByType(ctx, projects.TypeGroup)
	if err != nil {
		return err
	}
	containers, err := r.projects.CountByType(ctx, projects.TypeContainer)
	if err != nil {
		return err
	}

	writes := []struct {
		key   settings.Key
		value int64
	}{
		{settings.KeyStatsProjectsTotal, total},
		{settings.KeyStatsProjectsActive, active},
		{settings.KeyStatsProjectsInactive, inactive},
		{settings.KeyStatsProjectsArchived, archived},
		{settings.KeyStatsProjectsServers, servers},
		{settings.KeyStatsProjectsGroups, groups},
		{settings.KeyStatsProjectsContainers, containers},
	}
	for _, w := range writes {
		if err := r.settings.SetStatistic(ctx, w.key, w.value); err != nil {
			return err
		}
	}
	return nil
}

// dependencyStatistics counts component identities: total, those classified
// as a programming language ("languages" in the original's vocabulary),
// those currently named by a Vulnerable alert ("insecure"), the remainder
// ("secure"), and those never referenced by any snapshot ("unused").
//
// Secure/Insecure/Unused are not computed by the original implementation —
// their keys are declared but never written there. They are completed here
// as a genuine SPEC_FULL.md supplement (see DESIGN.md).
func (r *Rollup) dependencyStatistics(ctx context.Context) error {
	total, err := r.components.CountTotal(ctx)
	if err != nil {
		return err
	}
	languages, err := r.components.CountByCategory(ctx, catalogue.ProgrammingLanguage)
	if err != nil {
		return err
	}
	insecure, err := r.alerts.CountDistinctInsecureComponents(ctx)
	if err != nil {
		return err
	}
	unused, err := r.components.CountUnused(ctx)
	if err != nil {
		return err
	}
	secure := total - insecure
	if secure < 0 {
		secure = 0
	}

	writes := []struct {
		key   settings.Key
		value int64
	}{
		{settings.KeyStatsDependenciesTotal, total},
		{settings.KeyStatsDependenciesLanguages, languages},
		{settings.KeyStatsDependenciesSecure, secure},
		{settings.KeyStatsDependenciesInsecure, insecure},
		{settings.KeyStatsDependenciesUnused, unused},
	}
	for _, w := range writes {
		if err := r.settings.SetStatistic(ctx, w.key, w.value); err != nil {
			return err
		}
	}
	return nil
}

// advisoryStatistics counts the locally-tracked advisory rows. This counter
// has no equivalent in the original key vocabulary; it is added because
// SPEC_FULL.md's Statistics Rollup description explicitly names "total
// advisories" as a tracked counter.
func (r *Rollup) advisoryStatistics(ctx context.Context) error {
	total, err := r.advisories.CountTotal(ctx)
	if err != nil {
		return err
	}
	return r.settings.SetStatistic(ctx, settings.KeyStatsAdvisoriesTotal, total)
}
