package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// PublishOpts holds parameters for publishing a source.
type PublishOpts struct {
	ArchiveID      uint
	DistroSeriesID uint
	SourceName     string
	Version        string
	Component      string
	Section        string
	Urgency        string
	Pocket         string
}

// PublishSource records a new PENDING publication. Older active
// publications of the same source in the same archive, series and pocket
// are superseded, which retires their queued builds at the next dispatch
// or sweep.
func PublishSource(db *gorm.DB, opts PublishOpts) (*models.SourcePublication, error) {
	if opts.SourceName == "" || opts.Version == "" {
		return nil, fmt.Errorf("archive: source name and version are required")
	}
	if opts.Component == "" {
		opts.Component = "main"
	}
	if opts.Urgency == "" {
		opts.Urgency = "low"
	}
	if opts.Pocket == "" {
		opts.Pocket = models.PocketRelease
	}

	var pub models.SourcePublication
	err := db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := tx.Model(&models.SourcePublication{}).
			Where("archive_id = ? AND distro_series_id = ? AND source_name = ? AND pocket = ?",
				opts.ArchiveID, opts.DistroSeriesID, opts.SourceName, opts.Pocket).
			Where("version <> ? AND status IN ?", opts.Version, models.ActivePublicationStatuses).
			Updates(map[string]interface{}{
				"status":          models.PublicationSuperseded,
				"date_superseded": now,
			}).Error; err != nil {
			return fmt.Errorf("archive: supersede older %s: %w", opts.SourceName, err)
		}

		pub = models.SourcePublication{
			ArchiveID:      opts.ArchiveID,
			DistroSeriesID: opts.DistroSeriesID,
			SourceName:     opts.SourceName,
			Version:        opts.Version,
			Component:      opts.Component,
			Section:        opts.Section,
			Urgency:        opts.Urgency,
			Pocket:         opts.Pocket,
			Status:         models.PublicationPending,
			DateCreated:    now,
		}
		if err := tx.Create(&pub).Error; err != nil {
			return fmt.Errorf("archive: publish %s %s: %w", opts.SourceName, opts.Version, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func getPublication(db *gorm.DB, id uint) (*models.SourcePublication, error) {
	var pub models.SourcePublication
	if err := db.First(&pub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("archive: publication not found: %d", id)
		}
		return nil, fmt.Errorf("archive: get publication %d: %w", id, err)
	}
	return &pub, nil
}

// MarkPublished moves a PENDING publication to PUBLISHED.
func MarkPublished(db *gorm.DB, id uint) error {
	pub, err := getPublication(db, id)
	if err != nil {
		return err
	}
	if pub.Status != models.PublicationPending {
		return fmt.Errorf("archive: publication %d is %s, not PENDING", id, pub.Status)
	}
	return db.Model(&models.SourcePublication{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         models.PublicationPublished,
		"date_published": time.Now(),
	}).Error
}

// Supersede marks an active publication SUPERSEDED. Superseding an already
// superseded publication is a no-op.
func Supersede(db *gorm.DB, id uint) error {
	pub, err := getPublication(db, id)
	if err != nil {
		return err
	}
	switch pub.Status {
	case models.PublicationSuperseded:
		return nil
	case models.PublicationPending, models.PublicationPublished:
	default:
		return fmt.Errorf("archive: publication %d is %s", id, pub.Status)
	}
	return db.Model(&models.SourcePublication{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          models.PublicationSuperseded,
		"date_superseded": time.Now(),
	}).Error
}

// FindPublication returns the newest publication of a source version in an
// archive and series.
func FindPublication(db *gorm.DB, archiveID, seriesID uint, name, version string) (*models.SourcePublication, error) {
	var pub models.SourcePublication
	res := db.Where("archive_id = ? AND distro_series_id = ? AND source_name = ? AND version = ?",
		archiveID, seriesID, name, version).Order("id DESC").Limit(1).Find(&pub)
	if res.Error != nil {
		return nil, fmt.Errorf("archive: find publication %s %s: %w", name, version, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("archive: publication not found: %s %s", name, version)
	}
	return &pub, nil
}

// CreateMissingBuilds creates a build for every architecture of the
// publication's series that has none for this source version yet. It
// returns the builds created.
func CreateMissingBuilds(db *gorm.DB, pubID uint) ([]models.Build, error) {
	pub, err := getPublication(db, pubID)
	if err != nil {
		return nil, err
	}
	if !pub.IsActive() {
		return nil, fmt.Errorf("archive: publication %d is %s", pubID, pub.Status)
	}

	var arches []models.DistroArchSeries
	if err := db.Where("distro_series_id = ?", pub.DistroSeriesID).Order("arch_tag ASC").Find(&arches).Error; err != nil {
		return nil, fmt.Errorf("archive: list arches of series %d: %w", pub.DistroSeriesID, err)
	}

	var created []models.Build
	for _, arch := range arches {
		var existing int64
		if err := db.Model(&models.Build{}).
			Where("archive_id = ? AND distro_arch_series_id = ? AND source_name = ? AND source_version = ?",
				pub.ArchiveID, arch.ID, pub.SourceName, pub.Version).
			Count(&existing).Error; err != nil {
			return created, fmt.Errorf("archive: check builds for %s: %w", pub.SourceName, err)
		}
		if existing > 0 {
			continue
		}
		b, _, err := buildqueue.CreateBuild(db, buildqueue.CreateBuildOpts{
			ArchiveID:          pub.ArchiveID,
			DistroArchSeriesID: arch.ID,
			SourceName:         pub.SourceName,
			SourceVersion:      pub.Version,
			Pocket:             pub.Pocket,
		})
		if err != nil {
			return created, err
		}
		created = append(created, *b)
	}
	return created, nil
}
