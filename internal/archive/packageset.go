package archive

import (
	"fmt"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AddPackageset creates a packageset in a series. Its relative score boosts
// member builds in main archives.
func AddPackageset(db *gorm.DB, seriesID uint, name string, relativeScore int) (*models.Packageset, error) {
	if name == "" {
		return nil, fmt.Errorf("archive: packageset name is required")
	}
	ps := models.Packageset{Name: name, DistroSeriesID: seriesID, RelativeBuildScore: relativeScore}
	if err := db.Create(&ps).Error; err != nil {
		return nil, fmt.Errorf("archive: create packageset %s: %w", name, err)
	}
	return &ps, nil
}

// AddToPackageset adds sources to a packageset. Existing members are
// ignored.
func AddToPackageset(db *gorm.DB, packagesetID uint, sources ...string) error {
	if len(sources) == 0 {
		return nil
	}
	rows := make([]models.PackagesetSource, len(sources))
	for i, s := range sources {
		rows[i] = models.PackagesetSource{PackagesetID: packagesetID, SourceName: s}
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("archive: add to packageset %d: %w", packagesetID, err)
	}
	return nil
}
