package models

// Archive purposes.
const (
	ArchivePrimary = "PRIMARY"
	ArchivePPA     = "PPA"
	ArchivePartner = "PARTNER"
	ArchiveCopy    = "COPY"
)

// Archive is a package repository builds are published into.
type Archive struct {
	ID                          uint   `gorm:"primaryKey;autoIncrement"`
	Name                        string `gorm:"size:64;uniqueIndex;not null"`
	Owner                       string `gorm:"size:64"`
	Purpose                     string `gorm:"size:16;default:PPA;index"`
	Enabled                     bool
	Private                     bool
	RequireVirtualized          bool
	RelativeBuildScore          int
	PermitObsoleteSeriesUploads bool
}

func (Archive) TableName() string { return "archives" }

// IsMain reports whether the archive belongs to the distribution itself
// rather than to a person or a rebuild.
func (a *Archive) IsMain() bool {
	return a.Purpose == ArchivePrimary || a.Purpose == ArchivePartner
}

// Packageset groups source names within a series so their builds can be
// boosted together.
type Packageset struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	Name               string `gorm:"size:64;uniqueIndex:idx_packageset_series_name;not null"`
	DistroSeriesID     uint   `gorm:"uniqueIndex:idx_packageset_series_name;not null"`
	RelativeBuildScore int

	Sources []PackagesetSource `gorm:"foreignKey:PackagesetID"`
}

func (Packageset) TableName() string { return "packagesets" }

// PackagesetSource is one member of a packageset.
type PackagesetSource struct {
	PackagesetID uint   `gorm:"primaryKey"`
	SourceName   string `gorm:"primaryKey;size:128"`
}

func (PackagesetSource) TableName() string { return "packageset_sources" }
