package models

import "time"

// Build status values.
const (
	BuildNeedsBuild     = "NEEDSBUILD"
	BuildBuilding       = "BUILDING"
	BuildUploading      = "UPLOADING"
	BuildFullyBuilt     = "FULLYBUILT"
	BuildFailedToBuild  = "FAILEDTOBUILD"
	BuildManualDepWait  = "MANUALDEPWAIT"
	BuildChrootWait     = "CHROOTWAIT"
	BuildSuperseded     = "SUPERSEDED"
	BuildFailedToUpload = "FAILEDTOUPLOAD"
	BuildCancelling     = "CANCELLING"
	BuildCancelled      = "CANCELLED"
)

// Queue job status values.
const (
	JobWaiting = "WAITING"
	JobRunning = "RUNNING"
)

// Build is one attempt to compile a source package version for one
// architecture in one archive. Builds are retained as history.
type Build struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	ArchiveID           uint   `gorm:"index;not null"`
	DistroArchSeriesID  uint   `gorm:"index;not null"`
	SourceName          string `gorm:"size:128;index;not null"`
	SourceVersion       string `gorm:"size:128;not null"`
	Pocket              string `gorm:"size:16;default:RELEASE"`
	Status              string `gorm:"size:16;default:NEEDSBUILD;index"`
	BuilderID           *uint
	DispatchCookie      string `gorm:"size:64"`
	FailureCount        int
	DateCreated         time.Time
	DateStarted         *time.Time
	DateFirstDispatched *time.Time
	DateFinished        *time.Time

	Archive          *Archive          `gorm:"foreignKey:ArchiveID"`
	DistroArchSeries *DistroArchSeries `gorm:"foreignKey:DistroArchSeriesID"`
	Builder          *Builder          `gorm:"foreignKey:BuilderID"`
}

func (Build) TableName() string { return "builds" }

// BuildQueue is the dispatch record of a pending or running build. It
// carries the score the candidate selector orders by.
type BuildQueue struct {
	ID                uint `gorm:"primaryKey;autoIncrement"`
	BuildID           uint `gorm:"uniqueIndex;not null"`
	BuilderID         *uint
	LastScore         int    `gorm:"index"`
	Manual            bool
	Processor         string `gorm:"size:32;index"`
	Virtualized       bool
	EstimatedDuration int    // seconds
	JobStatus         string `gorm:"size:16;default:WAITING;index"`
	DateStarted       *time.Time
	Logtail           string `gorm:"type:text"`

	Build *Build `gorm:"foreignKey:BuildID"`
}

func (BuildQueue) TableName() string { return "build_queues" }
