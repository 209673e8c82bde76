package buildqueue

import (
	"fmt"
	"time"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// activePublication returns the newest PENDING or PUBLISHED publication of
// the build's source in its archive and series, or nil.
func activePublication(db *gorm.DB, build *models.Build) (*models.SourcePublication, error) {
	var pub models.SourcePublication
	res := db.Where("archive_id = ? AND distro_series_id = ? AND source_name = ? AND version = ?",
		build.ArchiveID, build.DistroArchSeries.DistroSeriesID, build.SourceName, build.SourceVersion).
		Where("status IN ?", models.ActivePublicationStatuses).
		Order("id DESC").
		Limit(1).
		Find(&pub)
	if res.Error != nil {
		return nil, fmt.Errorf("buildqueue: find publication for build %d: %w", build.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &pub, nil
}

// retireStatus returns the status a queued build must be retired with, or
// "" if it may still be dispatched. build.DistroArchSeries.DistroSeries and
// build.Archive must be loaded.
func retireStatus(build *models.Build, pub *models.SourcePublication) string {
	if build.Pocket == models.PocketSecurity {
		// Security builds are never dispatched from the queue.
		return models.BuildFailedToBuild
	}
	if series := build.DistroArchSeries.DistroSeries; series != nil &&
		series.Status == models.SeriesObsolete && !build.Archive.PermitObsoleteSeriesUploads {
		return models.BuildFailedToBuild
	}
	if pub == nil {
		return models.BuildSuperseded
	}
	return ""
}

// retire moves a NEEDSBUILD build to status and drops its queue entry, both
// or neither. Retiring an already retired build is a no-op.
func retire(db *gorm.DB, entry *models.BuildQueue, status string, now time.Time) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Build{}).
			Where("id = ? AND status = ?", entry.BuildID, models.BuildNeedsBuild).
			Updates(map[string]interface{}{
				"status":        status,
				"date_finished": now,
			})
		if res.Error != nil {
			return fmt.Errorf("buildqueue: retire build %d: %w", entry.BuildID, res.Error)
		}
		if err := tx.Where("id = ? AND job_status = ?", entry.ID, models.JobWaiting).
			Delete(&models.BuildQueue{}).Error; err != nil {
			return fmt.Errorf("buildqueue: delete queue entry %d: %w", entry.ID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if entry.Build != nil {
		entry.Build.Status = status
		entry.Build.DateFinished = &now
	}
	return nil
}

// SweepResult counts the builds retired by SweepSuperseded.
type SweepResult struct {
	Superseded int
	Failed     int
}

// Total returns the number of builds retired.
func (r SweepResult) Total() int { return r.Superseded + r.Failed }

// SweepSuperseded retires every waiting build the candidate selector would
// retire, regardless of builder compatibility.
func SweepSuperseded(db *gorm.DB) (SweepResult, error) {
	var result SweepResult
	err := db.Transaction(func(tx *gorm.DB) error {
		var entries []models.BuildQueue
		err := tx.Joins("JOIN builds ON builds.id = build_queues.build_id").
			Where("build_queues.job_status = ? AND builds.status = ?", models.JobWaiting, models.BuildNeedsBuild).
			Preload("Build.Archive").
			Preload("Build.DistroArchSeries.DistroSeries").
			Order("build_queues.id ASC").
			Find(&entries).Error
		if err != nil {
			return fmt.Errorf("buildqueue: sweep: %w", err)
		}

		now := time.Now()
		for i := range entries {
			entry := &entries[i]
			if entry.Build == nil || entry.Build.Archive == nil || entry.Build.DistroArchSeries == nil {
				continue
			}
			pub, err := activePublication(tx, entry.Build)
			if err != nil {
				return err
			}
			status := retireStatus(entry.Build, pub)
			if status == "" {
				continue
			}
			if err := retire(tx, entry, status, now); err != nil {
				return err
			}
			if status == models.BuildSuperseded {
				result.Superseded++
			} else {
				result.Failed++
			}
		}
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return result, nil
}
