package buildqueue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrClaimConflict is returned when another dispatcher claimed the
	// candidate first. Callers retry selection from scratch.
	ErrClaimConflict = errors.New("buildqueue: candidate was claimed concurrently")
	// ErrBuilderNotOK is returned when dispatching to a disabled builder.
	ErrBuilderNotOK = errors.New("buildqueue: builder is not OK")
	// ErrBuilderBusy is returned when the builder already runs a job.
	ErrBuilderBusy = errors.New("buildqueue: builder already has a running job")
)

// AcquireCandidate selects the best candidate for the builder and claims it
// in one transaction: the queue entry becomes RUNNING on the builder and the
// build becomes BUILDING with a fresh dispatch cookie. It returns nil, nil
// when there is no work; retire side effects of the scan are still
// committed.
func AcquireCandidate(db *gorm.DB, builderID uint, policy Policy) (*Candidate, error) {
	if builderID == 0 {
		return nil, fmt.Errorf("buildqueue: builderID is required")
	}

	var claimed *Candidate

	err := db.Transaction(func(tx *gorm.DB) error {
		var builder models.Builder
		if err := tx.First(&builder, builderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("buildqueue: builder %d %w", builderID, ErrNotFound)
			}
			return fmt.Errorf("buildqueue: get builder %d: %w", builderID, err)
		}
		if !builder.BuilderOK {
			return fmt.Errorf("buildqueue: builder %s: %w", builder.Name, ErrBuilderNotOK)
		}

		var running int64
		if err := tx.Model(&models.BuildQueue{}).Where("builder_id = ?", builder.ID).Count(&running).Error; err != nil {
			return fmt.Errorf("buildqueue: check builder %s: %w", builder.Name, err)
		}
		if running > 0 {
			return fmt.Errorf("buildqueue: builder %s: %w", builder.Name, ErrBuilderBusy)
		}

		c, err := findCandidate(tx, &builder, policy, true)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}

		if err := claim(tx, c, &builder, time.Now()); err != nil {
			return err
		}
		claimed = c
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// claim marks the candidate as running on builder. The conditional updates
// detect a concurrent claim.
func claim(tx *gorm.DB, c *Candidate, builder *models.Builder, now time.Time) error {
	res := tx.Model(&models.BuildQueue{}).
		Where("id = ? AND builder_id IS NULL AND job_status = ?", c.Queue.ID, models.JobWaiting).
		Updates(map[string]interface{}{
			"builder_id":   builder.ID,
			"job_status":   models.JobRunning,
			"date_started": now,
		})
	if res.Error != nil {
		return fmt.Errorf("buildqueue: claim queue entry %d: %w", c.Queue.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimConflict
	}

	cookie := uuid.NewString()
	updates := map[string]interface{}{
		"status":          models.BuildBuilding,
		"builder_id":      builder.ID,
		"date_started":    now,
		"dispatch_cookie": cookie,
	}
	if c.Build.DateFirstDispatched == nil {
		updates["date_first_dispatched"] = now
	}
	res = tx.Model(&models.Build{}).
		Where("id = ? AND status = ?", c.Build.ID, models.BuildNeedsBuild).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("buildqueue: claim build %d: %w", c.Build.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimConflict
	}

	c.Queue.BuilderID = &builder.ID
	c.Queue.JobStatus = models.JobRunning
	c.Queue.DateStarted = &now
	c.Build.Status = models.BuildBuilding
	c.Build.BuilderID = &builder.ID
	c.Build.Builder = builder
	c.Build.DateStarted = &now
	c.Build.DispatchCookie = cookie
	if c.Build.DateFirstDispatched == nil {
		c.Build.DateFirstDispatched = &now
	}
	return nil
}
