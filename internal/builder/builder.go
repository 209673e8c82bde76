// Package builder manages the build workers of the farm.
package builder

import (
	"errors"
	"fmt"

	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// AddOpts holds parameters for adding a builder.
type AddOpts struct {
	Name        string
	URL         string
	Processor   string
	Virtualized bool
	Manual      bool
}

// Add registers a new builder. New builders start OK.
func Add(db *gorm.DB, opts AddOpts) (*models.Builder, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("builder: name is required")
	}
	if opts.Processor == "" {
		return nil, fmt.Errorf("builder: processor is required")
	}

	b := models.Builder{
		Name:        opts.Name,
		URL:         opts.URL,
		Processor:   opts.Processor,
		Virtualized: opts.Virtualized,
		Manual:      opts.Manual,
		BuilderOK:   true,
	}
	if err := db.Create(&b).Error; err != nil {
		return nil, fmt.Errorf("builder: add %s: %w", opts.Name, err)
	}
	return &b, nil
}

// Get retrieves a builder by ID.
func Get(db *gorm.DB, id uint) (*models.Builder, error) {
	var b models.Builder
	if err := db.First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("builder: not found: %d", id)
		}
		return nil, fmt.Errorf("builder: get %d: %w", id, err)
	}
	return &b, nil
}

// GetByName retrieves a builder by name.
func GetByName(db *gorm.DB, name string) (*models.Builder, error) {
	var b models.Builder
	if err := db.Where("name = ?", name).First(&b).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("builder: not found: %s", name)
		}
		return nil, fmt.Errorf("builder: get %s: %w", name, err)
	}
	return &b, nil
}

// ListOpts filters List.
type ListOpts struct {
	Processor string
	OKOnly    bool
}

// List returns builders ordered by name.
func List(db *gorm.DB, opts ListOpts) ([]models.Builder, error) {
	q := db.Order("name ASC")
	if opts.Processor != "" {
		q = q.Where("processor = ?", opts.Processor)
	}
	if opts.OKOnly {
		q = q.Where("builderok = ?", true)
	}
	var builders []models.Builder
	if err := q.Find(&builders).Error; err != nil {
		return nil, fmt.Errorf("builder: list: %w", err)
	}
	return builders, nil
}

// Dispatchable returns the OK, automatic builders that have no running job,
// ordered by ID.
func Dispatchable(db *gorm.DB) ([]models.Builder, error) {
	busy := db.Model(&models.BuildQueue{}).Select("builder_id").Where("builder_id IS NOT NULL")
	var builders []models.Builder
	err := db.Where("builderok = ? AND manual = ?", true, false).
		Where("id NOT IN (?)", busy).
		Order("id ASC").
		Find(&builders).Error
	if err != nil {
		return nil, fmt.Errorf("builder: list dispatchable: %w", err)
	}
	return builders, nil
}

// SetOK enables or disables a builder. Enabling clears the failure count
// and notes; disabling records note as the reason.
func SetOK(db *gorm.DB, id uint, ok bool, note string) error {
	updates := map[string]interface{}{"builderok": ok}
	if ok {
		updates["failure_count"] = 0
		updates["fail_notes"] = ""
	} else if note != "" {
		updates["fail_notes"] = note
	}
	return update(db, id, updates)
}

// ResetFailures clears the failure count after a successful dispatch.
func ResetFailures(db *gorm.DB, id uint) error {
	err := db.Model(&models.Builder{}).Where("id = ? AND failure_count > 0", id).
		Update("failure_count", 0).Error
	if err != nil {
		return fmt.Errorf("builder: reset failures on %d: %w", id, err)
	}
	return nil
}

// SetManual moves a builder in or out of manual mode. Manual builders are
// skipped by automatic dispatch.
func SetManual(db *gorm.DB, id uint, manual bool) error {
	return update(db, id, map[string]interface{}{"manual": manual})
}

func update(db *gorm.DB, id uint, updates map[string]interface{}) error {
	res := db.Model(&models.Builder{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("builder: update %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("builder: not found: %d", id)
	}
	return nil
}

// CurrentJob returns the queue entry running on the builder, with its build
// loaded, or nil if the builder is idle.
func CurrentJob(db *gorm.DB, id uint) (*models.BuildQueue, error) {
	var entry models.BuildQueue
	res := db.Preload("Build").Where("builder_id = ?", id).Limit(1).Find(&entry)
	if res.Error != nil {
		return nil, fmt.Errorf("builder: current job of %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

// HandleFailure counts a failure against a builder. Its running job, if
// any, goes back to the queue, or ends CANCELLED if it was being cancelled. Once FailureCount reaches threshold the
// builder is disabled with note. It reports whether the builder was
// disabled by this call.
func HandleFailure(db *gorm.DB, id uint, note string, threshold int) (bool, error) {
	var disabled bool
	err := db.Transaction(func(tx *gorm.DB) error {
		var b models.Builder
		if err := tx.First(&b, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("builder: not found: %d", id)
			}
			return fmt.Errorf("builder: get %d: %w", id, err)
		}

		if _, err := buildqueue.ResetBuilderJob(tx, id); err != nil {
			return err
		}

		updates := map[string]interface{}{"failure_count": b.FailureCount + 1}
		if threshold > 0 && b.FailureCount+1 >= threshold && b.BuilderOK {
			updates["builderok"] = false
			updates["fail_notes"] = note
			disabled = true
		}
		if err := tx.Model(&models.Builder{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return fmt.Errorf("builder: record failure on %s: %w", b.Name, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return disabled, nil
}
