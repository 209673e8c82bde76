package db

import (
	"fmt"

	"github.com/zulandar/buildyard/internal/config"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.DistroSeries{},
		&models.DistroArchSeries{},
		&models.Archive{},
		&models.Packageset{},
		&models.PackagesetSource{},
		&models.SourcePublication{},
		&models.Builder{},
		&models.Build{},
		&models.BuildQueue{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DropTables drops every table AutoMigrate creates. It is the reset path
// for SQLite, where there is no server-level database to drop.
func DropTables(db *gorm.DB) error {
	models := AllModels()
	// Reverse order drops dependents first.
	for i := len(models) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(models[i]); err != nil {
			return fmt.Errorf("db: drop %T: %w", models[i], err)
		}
	}
	return nil
}

// Seed upserts series, archives and builders from configuration.
func Seed(db *gorm.DB, cfg *config.Config) error {
	if err := SeedSeries(db, cfg.Series); err != nil {
		return err
	}
	if err := SeedArchives(db, cfg.Archives); err != nil {
		return err
	}
	return SeedBuilders(db, cfg.Builders)
}

// SeedSeries upserts DistroSeries and DistroArchSeries rows.
func SeedSeries(db *gorm.DB, series []config.SeriesConfig) error {
	for _, sc := range series {
		ds := models.DistroSeries{Name: sc.Name, Status: sc.Status}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"status"}),
		}).Create(&ds)
		if result.Error != nil {
			return fmt.Errorf("db: seed series %q: %w", sc.Name, result.Error)
		}
		// The upsert does not reliably report the existing row's ID.
		if err := db.Where("name = ?", sc.Name).First(&ds).Error; err != nil {
			return fmt.Errorf("db: reload series %q: %w", sc.Name, err)
		}

		for _, ac := range sc.Architectures {
			das := models.DistroArchSeries{
				DistroSeriesID: ds.ID,
				ArchTag:        ac.Tag,
				Processor:      ac.Processor,
			}
			result := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "distro_series_id"}, {Name: "arch_tag"}},
				DoUpdates: clause.AssignmentColumns([]string{"processor"}),
			}).Create(&das)
			if result.Error != nil {
				return fmt.Errorf("db: seed arch %s/%s: %w", sc.Name, ac.Tag, result.Error)
			}
		}
	}
	return nil
}

// SeedArchives upserts Archive rows.
func SeedArchives(db *gorm.DB, archives []config.ArchiveConfig) error {
	for _, ac := range archives {
		a := models.Archive{
			Name:                        ac.Name,
			Owner:                       ac.Owner,
			Purpose:                     ac.Purpose,
			Enabled:                     !ac.Disabled,
			Private:                     ac.Private,
			RequireVirtualized:          ac.RequireVirtualized,
			RelativeBuildScore:          ac.RelativeBuildScore,
			PermitObsoleteSeriesUploads: ac.PermitObsoleteSeriesUploads,
		}
		result := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"owner", "purpose", "enabled", "private", "require_virtualized",
				"relative_build_score", "permit_obsolete_series_uploads",
			}),
		}).Create(&a)
		if result.Error != nil {
			return fmt.Errorf("db: seed archive %q: %w", ac.Name, result.Error)
		}
	}
	return nil
}

// SeedBuilders upserts Builder rows. New builders start OK; the OK flag and
// failure count of existing builders are left alone.
func SeedBuilders(db *gorm.DB, builders []config.BuilderConfig) error {
	for _, bc := range builders {
		b := models.Builder{
			Name:        bc.Name,
			URL:         bc.URL,
			Processor:   bc.Processor,
			Virtualized: bc.Virtualized,
			Manual:      bc.Manual,
			BuilderOK:   true,
		}
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"url", "processor", "virtualized", "manual"}),
		}).Create(&b)
		if result.Error != nil {
			return fmt.Errorf("db: seed builder %q: %w", bc.Name, result.Error)
		}
	}
	return nil
}
