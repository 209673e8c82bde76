package archive

import (
	"errors"
	"fmt"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

var validSeriesStatuses = map[string]bool{
	models.SeriesExperimental: true,
	models.SeriesDevelopment:  true,
	models.SeriesFrozen:       true,
	models.SeriesCurrent:      true,
	models.SeriesSupported:    true,
	models.SeriesObsolete:     true,
}

// EnsureDistroSeries returns the named series, creating it with status if
// it does not exist. An existing series keeps its status.
func EnsureDistroSeries(db *gorm.DB, name, status string) (*models.DistroSeries, error) {
	if name == "" {
		return nil, fmt.Errorf("archive: series name is required")
	}
	if status == "" {
		status = models.SeriesDevelopment
	}
	if !validSeriesStatuses[status] {
		return nil, fmt.Errorf("archive: invalid series status %q", status)
	}

	s := models.DistroSeries{Name: name}
	if err := db.Where(models.DistroSeries{Name: name}).
		Attrs(models.DistroSeries{Status: status}).
		FirstOrCreate(&s).Error; err != nil {
		return nil, fmt.Errorf("archive: ensure series %s: %w", name, err)
	}
	return &s, nil
}

// GetDistroSeries retrieves a series by name with its architectures.
func GetDistroSeries(db *gorm.DB, name string) (*models.DistroSeries, error) {
	var s models.DistroSeries
	if err := db.Preload("Architectures").Where("name = ?", name).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("archive: series not found: %s", name)
		}
		return nil, fmt.Errorf("archive: get series %s: %w", name, err)
	}
	return &s, nil
}

// EnsureArchSeries returns the architecture of a series, creating it if
// needed. Processor defaults to the tag.
func EnsureArchSeries(db *gorm.DB, seriesID uint, tag, processor string) (*models.DistroArchSeries, error) {
	if seriesID == 0 || tag == "" {
		return nil, fmt.Errorf("archive: series and arch tag are required")
	}
	if processor == "" {
		processor = tag
	}
	das := models.DistroArchSeries{}
	if err := db.Where(models.DistroArchSeries{DistroSeriesID: seriesID, ArchTag: tag}).
		Attrs(models.DistroArchSeries{Processor: processor}).
		FirstOrCreate(&das).Error; err != nil {
		return nil, fmt.Errorf("archive: ensure arch %s: %w", tag, err)
	}
	return &das, nil
}

// SetSeriesStatus changes a series' status.
func SetSeriesStatus(db *gorm.DB, name, status string) error {
	if !validSeriesStatuses[status] {
		return fmt.Errorf("archive: invalid series status %q", status)
	}
	res := db.Model(&models.DistroSeries{}).Where("name = ?", name).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("archive: set status on series %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("archive: series not found: %s", name)
	}
	return nil
}
