package buildqueue

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// Estimation constants.
const (
	// MinimumStartDelay is the earliest any waiting job is predicted to
	// start.
	MinimumStartDelay = 5 * time.Second
	// OverdrawnJobRemaining is assumed for running jobs that have exceeded
	// their estimated duration.
	OverdrawnJobRemaining = 2 * time.Minute
)

// ErrNotWaiting is returned when estimating a job that is not waiting.
var ErrNotWaiting = errors.New("buildqueue: queue entry is not waiting")

// EstimatedStartTime predicts when a waiting job will be dispatched. It
// returns nil when no builder can run the job.
//
// The prediction is the time until a suitable builder frees up (zero if one
// is idle) plus the summed durations of higher-priority jobs competing for
// the same builders, shared across the builder pool.
func EstimatedStartTime(db *gorm.DB, queueID uint, now time.Time) (*time.Time, error) {
	var entry models.BuildQueue
	if err := db.First(&entry, queueID).Error; err != nil {
		return nil, notFound("queue entry", queueID, err)
	}
	if entry.JobStatus != models.JobWaiting {
		return nil, fmt.Errorf("buildqueue: estimate entry %d: %w", queueID, ErrNotWaiting)
	}

	var builders []models.Builder
	bq := db.Where("builderok = ? AND manual = ? AND virtualized = ?", true, false, entry.Virtualized)
	if entry.Processor != "" {
		bq = bq.Where("processor = ?", entry.Processor)
	}
	if err := bq.Find(&builders).Error; err != nil {
		return nil, fmt.Errorf("buildqueue: estimate entry %d: builders: %w", queueID, err)
	}
	if len(builders) == 0 {
		return nil, nil
	}
	builderIDs := make([]uint, len(builders))
	for i, b := range builders {
		builderIDs[i] = b.ID
	}

	var running []models.BuildQueue
	if err := db.Where("builder_id IN ? AND job_status = ?", builderIDs, models.JobRunning).
		Find(&running).Error; err != nil {
		return nil, fmt.Errorf("buildqueue: estimate entry %d: running jobs: %w", queueID, err)
	}

	var delay time.Duration
	if free := len(builders) - len(running); free <= 0 {
		delay = timeToNextBuilder(running, now)
	}

	// Jobs ahead: higher score, or equal score and queued earlier.
	aq := db.Model(&models.BuildQueue{}).
		Where("job_status = ? AND virtualized = ?", models.JobWaiting, entry.Virtualized).
		Where("(last_score > ? OR (last_score = ? AND id < ?))", entry.LastScore, entry.LastScore, entry.ID)
	if entry.Processor != "" {
		aq = aq.Where("(processor = ? OR processor = '')", entry.Processor)
	}
	var ahead []models.BuildQueue
	if err := aq.Select("id", "estimated_duration").Find(&ahead).Error; err != nil {
		return nil, fmt.Errorf("buildqueue: estimate entry %d: jobs ahead: %w", queueID, err)
	}

	var pending time.Duration
	for _, j := range ahead {
		pending += time.Duration(j.EstimatedDuration) * time.Second
	}
	if share := min(len(ahead), len(builders)); share > 1 {
		pending /= time.Duration(share)
	}
	delay += pending

	if delay < MinimumStartDelay {
		delay = MinimumStartDelay
	}
	start := now.Add(delay)
	return &start, nil
}

// timeToNextBuilder returns how long until the first running job finishes.
func timeToNextBuilder(running []models.BuildQueue, now time.Time) time.Duration {
	var next time.Duration = -1
	for _, j := range running {
		remaining := OverdrawnJobRemaining
		if j.DateStarted != nil {
			left := time.Duration(j.EstimatedDuration)*time.Second - now.Sub(*j.DateStarted)
			if left > 0 {
				remaining = left
			}
		}
		if next < 0 || remaining < next {
			next = remaining
		}
	}
	if next < 0 {
		return 0
	}
	return next
}
