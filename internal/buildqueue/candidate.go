// Package buildqueue selects, claims and maintains queued package builds.
//
// All functions take a *gorm.DB which may be a transaction; the selector's
// retire side effects are committed with whatever unit of work the caller
// provides.
package buildqueue

import (
	"fmt"
	"time"

	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Throttle scopes, mirroring config.
const (
	ScopeProcessor = config.ScopeProcessor
	ScopeGlobal    = config.ScopeGlobal
)

// Policy tunes the PPA per-architecture throttle.
type Policy struct {
	// ThrottleScope selects which builders count towards
	// ThrottleMinBuilders: those of the candidate's processor, or all.
	ThrottleScope string
	// ThrottleMinBuilders is the number of eligible builders at which the
	// throttle starts to apply. Below it a PPA may use the only builder.
	ThrottleMinBuilders int
	// MaxBuildingPerArch is how many builds one PPA may have BUILDING for
	// an architecture tag before further candidates are skipped.
	MaxBuildingPerArch int
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		ThrottleScope:       ScopeProcessor,
		ThrottleMinBuilders: 2,
		MaxBuildingPerArch:  1,
	}
}

// PolicyFromConfig builds a Policy from the dispatch config section.
func PolicyFromConfig(cfg config.DispatchConfig) Policy {
	p := Policy{
		ThrottleScope:       cfg.PPAThrottleScope,
		ThrottleMinBuilders: cfg.PPAThrottleMinBuilders,
		MaxBuildingPerArch:  cfg.PPAMaxBuildingPerArch,
	}
	def := DefaultPolicy()
	if p.ThrottleScope == "" {
		p.ThrottleScope = def.ThrottleScope
	}
	if p.ThrottleMinBuilders < 1 {
		p.ThrottleMinBuilders = def.ThrottleMinBuilders
	}
	if p.MaxBuildingPerArch < 1 {
		p.MaxBuildingPerArch = def.MaxBuildingPerArch
	}
	return p
}

// Candidate is a queue entry chosen for a builder. Build has its Archive and
// DistroArchSeries (with DistroSeries) loaded.
type Candidate struct {
	Queue       *models.BuildQueue
	Build       *models.Build
	Publication *models.SourcePublication
}

// FindCandidate returns the highest-scored queue entry the builder may run,
// or nil when there is none. Stale builds met while scanning are retired
// (SUPERSEDED or FAILEDTOBUILD) and their queue entries removed, even when
// nothing is returned.
func FindCandidate(db *gorm.DB, builder *models.Builder, policy Policy) (*Candidate, error) {
	return findCandidate(db, builder, policy, false)
}

func findCandidate(db *gorm.DB, builder *models.Builder, policy Policy, lock bool) (*Candidate, error) {
	if builder == nil {
		return nil, fmt.Errorf("buildqueue: builder is required")
	}

	q := db.Joins("JOIN builds ON builds.id = build_queues.build_id").
		Where("build_queues.job_status = ? AND build_queues.builder_id IS NULL", models.JobWaiting).
		Where("builds.status = ?", models.BuildNeedsBuild).
		Where("(build_queues.processor = ? OR build_queues.processor = '')", builder.Processor).
		Where("build_queues.virtualized = ?", builder.Virtualized).
		Preload("Build.Archive").
		Preload("Build.DistroArchSeries.DistroSeries").
		Order("build_queues.last_score DESC, build_queues.id ASC")
	if lock {
		// Not every dialect supports SKIP LOCKED; the transaction still
		// serializes claimants, with less concurrency.
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var entries []models.BuildQueue
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("buildqueue: find candidates: %w", err)
	}

	now := time.Now()
	for i := range entries {
		entry := &entries[i]
		build := entry.Build
		if build == nil || build.Archive == nil || build.DistroArchSeries == nil {
			return nil, fmt.Errorf("buildqueue: queue entry %d has dangling references", entry.ID)
		}

		pub, err := activePublication(db, build)
		if err != nil {
			return nil, err
		}
		if status := retireStatus(build, pub); status != "" {
			if err := retire(db, entry, status, now); err != nil {
				return nil, err
			}
			continue
		}

		if !build.Archive.Enabled {
			continue
		}

		// Builders cannot fetch private sources until they are published.
		if build.Archive.Private && pub.Status == models.PublicationPending {
			continue
		}

		if build.Archive.Purpose == models.ArchivePPA {
			throttled, err := ppaThrottled(db, build, policy)
			if err != nil {
				return nil, err
			}
			if throttled {
				continue
			}
		}

		return &Candidate{Queue: entry, Build: build, Publication: pub}, nil
	}
	return nil, nil
}

// ppaThrottled reports whether the build's PPA already has its quota of
// BUILDING builds for the build's architecture tag while enough eligible
// builders exist for the throttle to apply.
func ppaThrottled(db *gorm.DB, build *models.Build, policy Policy) (bool, error) {
	var building int64
	err := db.Model(&models.Build{}).
		Joins("JOIN distro_arch_series das ON das.id = builds.distro_arch_series_id").
		Where("builds.archive_id = ? AND builds.status = ? AND das.arch_tag = ?",
			build.ArchiveID, models.BuildBuilding, build.DistroArchSeries.ArchTag).
		Count(&building).Error
	if err != nil {
		return false, fmt.Errorf("buildqueue: count building for archive %d: %w", build.ArchiveID, err)
	}
	if building < int64(policy.MaxBuildingPerArch) {
		return false, nil
	}

	eligible, err := countEligibleBuilders(db, build.DistroArchSeries.Processor, policy.ThrottleScope)
	if err != nil {
		return false, err
	}
	return eligible >= int64(policy.ThrottleMinBuilders), nil
}

// countEligibleBuilders counts builders that take automatic dispatch.
func countEligibleBuilders(db *gorm.DB, processor, scope string) (int64, error) {
	q := db.Model(&models.Builder{}).Where("builderok = ? AND manual = ?", true, false)
	if scope != ScopeGlobal {
		q = q.Where("processor = ?", processor)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("buildqueue: count builders: %w", err)
	}
	return n, nil
}
