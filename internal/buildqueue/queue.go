package buildqueue

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/buildyard/internal/models"
	"github.com/zulandar/buildyard/internal/scoring"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is wrapped by lookups of missing builds, queue entries,
	// archives and arch series.
	ErrNotFound = errors.New("not found")
	// ErrNotCancellable is returned when cancelling a finished build.
	ErrNotCancellable = errors.New("buildqueue: build cannot be cancelled")
	// ErrNotRetryable is returned when retrying a build whose status does
	// not allow it.
	ErrNotRetryable = errors.New("buildqueue: build cannot be retried")
	// ErrNotRunning is returned when resetting a queue entry that is not
	// running.
	ErrNotRunning = errors.New("buildqueue: queue entry is not running")
	// ErrInvalidStatus is returned for status reports naming a status a
	// builder cannot report.
	ErrInvalidStatus = errors.New("buildqueue: invalid reported status")
	// ErrInvalidTransition is returned when a status report does not fit
	// the build's current status or dispatch.
	ErrInvalidTransition = errors.New("buildqueue: invalid status transition")
)

// TerminalStatuses end a build's life in the queue.
var TerminalStatuses = []string{
	models.BuildFullyBuilt,
	models.BuildFailedToBuild,
	models.BuildManualDepWait,
	models.BuildChrootWait,
	models.BuildSuperseded,
	models.BuildFailedToUpload,
	models.BuildCancelled,
}

// RetryableStatuses may be sent back to NEEDSBUILD by Retry.
var RetryableStatuses = []string{
	models.BuildFailedToBuild,
	models.BuildManualDepWait,
	models.BuildChrootWait,
	models.BuildFailedToUpload,
	models.BuildCancelled,
}

func isOneOf(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CreateBuildOpts holds parameters for creating a build.
type CreateBuildOpts struct {
	ArchiveID          uint
	DistroArchSeriesID uint
	SourceName         string
	SourceVersion      string
	Pocket             string
	// EstimatedDuration feeds start-time estimates. Zero uses
	// DefaultEstimatedDuration.
	EstimatedDuration time.Duration
}

// DefaultEstimatedDuration is used for builds without a duration hint.
const DefaultEstimatedDuration = 10 * time.Minute

// CreateBuild creates a NEEDSBUILD build and its scored WAITING queue
// entry. The entry takes its processor from the architecture and its
// virtualization requirement from the archive.
func CreateBuild(db *gorm.DB, opts CreateBuildOpts) (*models.Build, *models.BuildQueue, error) {
	if opts.SourceName == "" || opts.SourceVersion == "" {
		return nil, nil, fmt.Errorf("buildqueue: source name and version are required")
	}
	if opts.Pocket == "" {
		opts.Pocket = models.PocketRelease
	}
	if opts.EstimatedDuration <= 0 {
		opts.EstimatedDuration = DefaultEstimatedDuration
	}

	var (
		build models.Build
		entry models.BuildQueue
	)
	err := db.Transaction(func(tx *gorm.DB) error {
		var archive models.Archive
		if err := tx.First(&archive, opts.ArchiveID).Error; err != nil {
			return notFound("archive", opts.ArchiveID, err)
		}
		var arch models.DistroArchSeries
		if err := tx.First(&arch, opts.DistroArchSeriesID).Error; err != nil {
			return notFound("arch series", opts.DistroArchSeriesID, err)
		}

		build = models.Build{
			ArchiveID:          archive.ID,
			DistroArchSeriesID: arch.ID,
			SourceName:         opts.SourceName,
			SourceVersion:      opts.SourceVersion,
			Pocket:             opts.Pocket,
			Status:             models.BuildNeedsBuild,
			DateCreated:        time.Now(),
		}
		if err := tx.Create(&build).Error; err != nil {
			return fmt.Errorf("buildqueue: create build: %w", err)
		}
		build.Archive = &archive
		build.DistroArchSeries = &arch

		score, err := computeScore(tx, &build)
		if err != nil {
			return err
		}
		entry = models.BuildQueue{
			BuildID:           build.ID,
			LastScore:         score,
			Processor:         arch.Processor,
			Virtualized:       archive.RequireVirtualized,
			EstimatedDuration: int(opts.EstimatedDuration / time.Second),
			JobStatus:         models.JobWaiting,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("buildqueue: create queue entry for build %d: %w", build.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &build, &entry, nil
}

func notFound(what string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("buildqueue: %s %d %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("buildqueue: get %s %d: %w", what, id, err)
}

// computeScore scores a build from its archive, pocket, newest publication
// and packageset membership. build.Archive and build.DistroArchSeries must
// be loaded.
func computeScore(db *gorm.DB, build *models.Build) (int, error) {
	in := scoring.Input{
		Pocket:             build.Pocket,
		ArchivePurpose:     build.Archive.Purpose,
		ArchivePrivate:     build.Archive.Private,
		RelativeBuildScore: build.Archive.RelativeBuildScore,
	}

	var pub models.SourcePublication
	res := db.Where("archive_id = ? AND distro_series_id = ? AND source_name = ? AND version = ?",
		build.ArchiveID, build.DistroArchSeries.DistroSeriesID, build.SourceName, build.SourceVersion).
		Order("id DESC").Limit(1).Find(&pub)
	if res.Error != nil {
		return 0, fmt.Errorf("buildqueue: score build %d: %w", build.ID, res.Error)
	}
	if res.RowsAffected > 0 {
		in.Component = pub.Component
		in.Urgency = pub.Urgency
		in.Section = pub.Section
	}

	if build.Archive.IsMain() {
		err := db.Model(&models.Packageset{}).
			Joins("JOIN packageset_sources ps ON ps.packageset_id = packagesets.id").
			Where("packagesets.distro_series_id = ? AND ps.source_name = ?",
				build.DistroArchSeries.DistroSeriesID, build.SourceName).
			Pluck("packagesets.relative_build_score", &in.PackagesetScores).Error
		if err != nil {
			return 0, fmt.Errorf("buildqueue: packagesets for build %d: %w", build.ID, err)
		}
	}

	return scoring.Score(in), nil
}

// loadEntry loads a queue entry with its build, archive and arch series.
func loadEntry(db *gorm.DB, queueID uint) (*models.BuildQueue, error) {
	var entry models.BuildQueue
	err := db.Preload("Build.Archive").Preload("Build.DistroArchSeries").First(&entry, queueID).Error
	if err != nil {
		return nil, notFound("queue entry", queueID, err)
	}
	if entry.Build == nil || entry.Build.Archive == nil || entry.Build.DistroArchSeries == nil {
		return nil, fmt.Errorf("buildqueue: queue entry %d has dangling references", queueID)
	}
	return &entry, nil
}

// Rescore recomputes an entry's score. Manually scored entries keep theirs.
// It returns the entry's score after the call.
func Rescore(db *gorm.DB, queueID uint) (int, error) {
	entry, err := loadEntry(db, queueID)
	if err != nil {
		return 0, err
	}
	return rescore(db, entry)
}

func rescore(db *gorm.DB, entry *models.BuildQueue) (int, error) {
	if entry.Manual {
		return entry.LastScore, nil
	}
	score, err := computeScore(db, entry.Build)
	if err != nil {
		return 0, err
	}
	if score == entry.LastScore {
		return score, nil
	}
	if err := db.Model(&models.BuildQueue{}).Where("id = ?", entry.ID).Update("last_score", score).Error; err != nil {
		return 0, fmt.Errorf("buildqueue: rescore entry %d: %w", entry.ID, err)
	}
	entry.LastScore = score
	return score, nil
}

// RescoreAll rescores every waiting, automatically scored entry and returns
// how many scores changed.
func RescoreAll(db *gorm.DB) (int, error) {
	var entries []models.BuildQueue
	err := db.Where("job_status = ? AND manual = ?", models.JobWaiting, false).
		Preload("Build.Archive").Preload("Build.DistroArchSeries").
		Find(&entries).Error
	if err != nil {
		return 0, fmt.Errorf("buildqueue: rescore all: %w", err)
	}

	changed := 0
	for i := range entries {
		entry := &entries[i]
		if entry.Build == nil || entry.Build.Archive == nil || entry.Build.DistroArchSeries == nil {
			continue
		}
		before := entry.LastScore
		after, err := rescore(db, entry)
		if err != nil {
			return changed, err
		}
		if after != before {
			changed++
		}
	}
	return changed, nil
}

// ManualScore pins an entry's score; rescoring leaves it alone afterwards.
func ManualScore(db *gorm.DB, queueID uint, score int) error {
	res := db.Model(&models.BuildQueue{}).Where("id = ?", queueID).Updates(map[string]interface{}{
		"last_score": score,
		"manual":     true,
	})
	if res.Error != nil {
		return fmt.Errorf("buildqueue: score entry %d: %w", queueID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("buildqueue: queue entry %d %w", queueID, ErrNotFound)
	}
	return nil
}

// Reset returns a running entry to the queue: the entry is WAITING with no
// builder and the build is NEEDSBUILD again. A build being cancelled is
// finished as CANCELLED instead.
func Reset(db *gorm.DB, queueID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var entry models.BuildQueue
		if err := tx.First(&entry, queueID).Error; err != nil {
			return notFound("queue entry", queueID, err)
		}
		if entry.JobStatus != models.JobRunning {
			return fmt.Errorf("buildqueue: reset entry %d: %w", queueID, ErrNotRunning)
		}
		return reset(tx, &entry)
	})
}

func reset(tx *gorm.DB, entry *models.BuildQueue) error {
	var build models.Build
	if err := tx.Select("id", "status").First(&build, entry.BuildID).Error; err != nil {
		return notFound("build", entry.BuildID, err)
	}
	if build.Status == models.BuildCancelling {
		return finishCancel(tx, entry)
	}

	if err := tx.Model(&models.BuildQueue{}).Where("id = ?", entry.ID).Updates(map[string]interface{}{
		"builder_id":   nil,
		"job_status":   models.JobWaiting,
		"date_started": nil,
		"logtail":      "",
	}).Error; err != nil {
		return fmt.Errorf("buildqueue: reset entry %d: %w", entry.ID, err)
	}
	if err := tx.Model(&models.Build{}).Where("id = ?", entry.BuildID).Updates(map[string]interface{}{
		"status":       models.BuildNeedsBuild,
		"builder_id":   nil,
		"date_started": nil,
	}).Error; err != nil {
		return fmt.Errorf("buildqueue: reset build %d: %w", entry.BuildID, err)
	}
	return nil
}

// finishCancel completes the cancellation of a build whose builder is gone.
func finishCancel(tx *gorm.DB, entry *models.BuildQueue) error {
	if err := tx.Model(&models.Build{}).Where("id = ?", entry.BuildID).Updates(map[string]interface{}{
		"status":        models.BuildCancelled,
		"date_finished": time.Now(),
	}).Error; err != nil {
		return fmt.Errorf("buildqueue: cancel build %d: %w", entry.BuildID, err)
	}
	if err := tx.Delete(&models.BuildQueue{}, entry.ID).Error; err != nil {
		return fmt.Errorf("buildqueue: dequeue build %d: %w", entry.BuildID, err)
	}
	return nil
}

// ResetBuilderJob resets the job running on a builder, if any, and counts
// the failure against its build. It reports whether a job was reset. A job
// whose build is being cancelled ends CANCELLED rather than being queued
// again.
func ResetBuilderJob(tx *gorm.DB, builderID uint) (bool, error) {
	var entry models.BuildQueue
	res := tx.Where("builder_id = ?", builderID).Limit(1).Find(&entry)
	if res.Error != nil {
		return false, fmt.Errorf("buildqueue: find job on builder %d: %w", builderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if err := reset(tx, &entry); err != nil {
		return false, err
	}
	if err := tx.Model(&models.Build{}).Where("id = ?", entry.BuildID).
		Update("failure_count", gorm.Expr("failure_count + 1")).Error; err != nil {
		return false, fmt.Errorf("buildqueue: count failure on build %d: %w", entry.BuildID, err)
	}
	return true, nil
}

// Cancel cancels a build. A waiting build is CANCELLED at once and leaves
// the queue; a running one becomes CANCELLING until its builder reports.
func Cancel(db *gorm.DB, buildID uint) (string, error) {
	var status string
	err := db.Transaction(func(tx *gorm.DB) error {
		var build models.Build
		if err := tx.First(&build, buildID).Error; err != nil {
			return notFound("build", buildID, err)
		}

		switch build.Status {
		case models.BuildNeedsBuild:
			status = models.BuildCancelled
			if err := tx.Model(&models.Build{}).Where("id = ?", build.ID).Updates(map[string]interface{}{
				"status":        status,
				"date_finished": time.Now(),
			}).Error; err != nil {
				return fmt.Errorf("buildqueue: cancel build %d: %w", buildID, err)
			}
			if err := tx.Where("build_id = ?", buildID).Delete(&models.BuildQueue{}).Error; err != nil {
				return fmt.Errorf("buildqueue: dequeue build %d: %w", buildID, err)
			}
		case models.BuildBuilding, models.BuildUploading:
			status = models.BuildCancelling
			if err := tx.Model(&models.Build{}).Where("id = ?", build.ID).Update("status", status).Error; err != nil {
				return fmt.Errorf("buildqueue: cancel build %d: %w", buildID, err)
			}
		case models.BuildCancelling:
			status = build.Status
		default:
			return fmt.Errorf("buildqueue: build %d is %s: %w", buildID, build.Status, ErrNotCancellable)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// UpdateStatus records a status reported for a running build. The cookie
// must be the one issued when the build was dispatched, so reports from a
// builder that has since lost the build are rejected. Terminal statuses
// finish the build and remove its queue entry; the logtail, if given, is
// kept on the queue entry while the build runs.
func UpdateStatus(db *gorm.DB, buildID uint, cookie, status, logtail string) error {
	terminal := isOneOf(status, TerminalStatuses)
	if !terminal && status != models.BuildBuilding && status != models.BuildUploading {
		return fmt.Errorf("%w %q", ErrInvalidStatus, status)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var build models.Build
		if err := tx.First(&build, buildID).Error; err != nil {
			return notFound("build", buildID, err)
		}
		switch build.Status {
		case models.BuildBuilding, models.BuildUploading, models.BuildCancelling:
		default:
			return fmt.Errorf("buildqueue: build %d is %s, not running: %w", buildID, build.Status, ErrInvalidTransition)
		}
		if cookie == "" || cookie != build.DispatchCookie {
			return fmt.Errorf("buildqueue: build %d: stale dispatch cookie: %w", buildID, ErrInvalidTransition)
		}

		// A build being cancelled can only finish as cancelled or built.
		if build.Status == models.BuildCancelling && !terminal {
			return nil
		}

		updates := map[string]interface{}{"status": status}
		if terminal {
			updates["date_finished"] = time.Now()
		}
		if err := tx.Model(&models.Build{}).Where("id = ?", build.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("buildqueue: update build %d: %w", buildID, err)
		}

		if terminal {
			if err := tx.Where("build_id = ?", buildID).Delete(&models.BuildQueue{}).Error; err != nil {
				return fmt.Errorf("buildqueue: dequeue build %d: %w", buildID, err)
			}
			return nil
		}
		if logtail != "" {
			if err := tx.Model(&models.BuildQueue{}).Where("build_id = ?", buildID).
				Update("logtail", logtail).Error; err != nil {
				return fmt.Errorf("buildqueue: logtail for build %d: %w", buildID, err)
			}
		}
		return nil
	})
}

// Retry sends a failed or cancelled build back to the queue with a fresh,
// scored entry.
func Retry(db *gorm.DB, buildID uint) (*models.BuildQueue, error) {
	var entry models.BuildQueue
	err := db.Transaction(func(tx *gorm.DB) error {
		var build models.Build
		if err := tx.Preload("Archive").Preload("DistroArchSeries").First(&build, buildID).Error; err != nil {
			return notFound("build", buildID, err)
		}
		if !isOneOf(build.Status, RetryableStatuses) {
			return fmt.Errorf("buildqueue: build %d is %s: %w", buildID, build.Status, ErrNotRetryable)
		}

		if err := tx.Model(&models.Build{}).Where("id = ?", build.ID).Updates(map[string]interface{}{
			"status":        models.BuildNeedsBuild,
			"builder_id":    nil,
			"date_started":  nil,
			"date_finished": nil,
		}).Error; err != nil {
			return fmt.Errorf("buildqueue: retry build %d: %w", buildID, err)
		}
		// A stale entry may survive a CANCELLING build that was never
		// dequeued.
		if err := tx.Where("build_id = ?", buildID).Delete(&models.BuildQueue{}).Error; err != nil {
			return fmt.Errorf("buildqueue: dequeue build %d: %w", buildID, err)
		}

		score, err := computeScore(tx, &build)
		if err != nil {
			return err
		}
		entry = models.BuildQueue{
			BuildID:           build.ID,
			LastScore:         score,
			Processor:         build.DistroArchSeries.Processor,
			Virtualized:       build.Archive.RequireVirtualized,
			EstimatedDuration: int(DefaultEstimatedDuration / time.Second),
			JobStatus:         models.JobWaiting,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("buildqueue: requeue build %d: %w", buildID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
