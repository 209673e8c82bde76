package models

import "time"

// Source publication status values.
const (
	PublicationPending    = "PENDING"
	PublicationPublished  = "PUBLISHED"
	PublicationSuperseded = "SUPERSEDED"
	PublicationDeleted    = "DELETED"
	PublicationObsolete   = "OBSOLETE"
)

// ActivePublicationStatuses are the statuses of a publication that still
// warrants building.
var ActivePublicationStatuses = []string{PublicationPending, PublicationPublished}

// Pockets.
const (
	PocketRelease   = "RELEASE"
	PocketSecurity  = "SECURITY"
	PocketUpdates   = "UPDATES"
	PocketProposed  = "PROPOSED"
	PocketBackports = "BACKPORTS"
)

// SourcePublication records a source package version published into an
// archive and series. Its status is the ground truth for whether builds of
// that version are still wanted.
type SourcePublication struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ArchiveID      uint   `gorm:"index:idx_spph_lookup;not null"`
	DistroSeriesID uint   `gorm:"index:idx_spph_lookup;not null"`
	SourceName     string `gorm:"size:128;index:idx_spph_lookup;not null"`
	Version        string `gorm:"size:128;index:idx_spph_lookup;not null"`
	Component      string `gorm:"size:32;default:main"`
	Section        string `gorm:"size:64"`
	Urgency        string `gorm:"size:16;default:low"`
	Pocket         string `gorm:"size:16;default:RELEASE"`
	Status         string `gorm:"size:16;default:PENDING;index"`
	DateCreated    time.Time
	DatePublished  *time.Time
	DateSuperseded *time.Time

	Archive      *Archive      `gorm:"foreignKey:ArchiveID"`
	DistroSeries *DistroSeries `gorm:"foreignKey:DistroSeriesID"`
}

func (SourcePublication) TableName() string { return "source_publications" }

// IsActive reports whether the publication still warrants building.
func (p *SourcePublication) IsActive() bool {
	return p.Status == PublicationPending || p.Status == PublicationPublished
}
