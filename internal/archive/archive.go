// Package archive manages archives, distro series, source publications and
// packagesets: the records that decide what gets built and how it scores.
package archive

import (
	"errors"
	"fmt"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

var validPurposes = map[string]bool{
	models.ArchivePrimary: true,
	models.ArchivePPA:     true,
	models.ArchivePartner: true,
	models.ArchiveCopy:    true,
}

// CreateOpts holds parameters for creating an archive.
type CreateOpts struct {
	Name                        string
	Owner                       string
	Purpose                     string
	Private                     bool
	RequireVirtualized          bool
	RelativeBuildScore          int
	PermitObsoleteSeriesUploads bool
}

// CreateArchive creates an enabled archive. Purpose defaults to PPA.
func CreateArchive(db *gorm.DB, opts CreateOpts) (*models.Archive, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("archive: name is required")
	}
	if opts.Purpose == "" {
		opts.Purpose = models.ArchivePPA
	}
	if !validPurposes[opts.Purpose] {
		return nil, fmt.Errorf("archive: invalid purpose %q", opts.Purpose)
	}

	a := models.Archive{
		Name:                        opts.Name,
		Owner:                       opts.Owner,
		Purpose:                     opts.Purpose,
		Enabled:                     true,
		Private:                     opts.Private,
		RequireVirtualized:          opts.RequireVirtualized,
		RelativeBuildScore:          opts.RelativeBuildScore,
		PermitObsoleteSeriesUploads: opts.PermitObsoleteSeriesUploads,
	}
	if err := db.Create(&a).Error; err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", opts.Name, err)
	}
	return &a, nil
}

// GetArchive retrieves an archive by name.
func GetArchive(db *gorm.DB, name string) (*models.Archive, error) {
	var a models.Archive
	if err := db.Where("name = ?", name).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("archive: not found: %s", name)
		}
		return nil, fmt.Errorf("archive: get %s: %w", name, err)
	}
	return &a, nil
}

// ListArchives returns all archives ordered by name.
func ListArchives(db *gorm.DB) ([]models.Archive, error) {
	var archives []models.Archive
	if err := db.Order("name ASC").Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return archives, nil
}

// SetEnabled enables or disables an archive. Builds of disabled archives
// stay queued but are never dispatched.
func SetEnabled(db *gorm.DB, name string, enabled bool) error {
	res := db.Model(&models.Archive{}).Where("name = ?", name).Update("enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("archive: set enabled on %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("archive: not found: %s", name)
	}
	return nil
}
