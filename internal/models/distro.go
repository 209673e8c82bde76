package models

// Distro series status values.
const (
	SeriesExperimental = "EXPERIMENTAL"
	SeriesDevelopment  = "DEVELOPMENT"
	SeriesFrozen       = "FROZEN"
	SeriesCurrent      = "CURRENT"
	SeriesSupported    = "SUPPORTED"
	SeriesObsolete     = "OBSOLETE"
)

// DistroSeries is one release of the distribution (e.g. "noble").
type DistroSeries struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	Name   string `gorm:"size:64;uniqueIndex;not null"`
	Status string `gorm:"size:16;default:DEVELOPMENT"`

	Architectures []DistroArchSeries `gorm:"foreignKey:DistroSeriesID"`
}

func (DistroSeries) TableName() string { return "distro_series" }

// DistroArchSeries is one architecture of a distro series. Builds target
// a DistroArchSeries; its Processor decides which builders may run them.
type DistroArchSeries struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	DistroSeriesID uint   `gorm:"uniqueIndex:idx_das_series_arch;not null"`
	ArchTag        string `gorm:"size:32;uniqueIndex:idx_das_series_arch;not null"`
	Processor      string `gorm:"size:32;index;not null"`

	DistroSeries *DistroSeries `gorm:"foreignKey:DistroSeriesID"`
}

func (DistroArchSeries) TableName() string { return "distro_arch_series" }
