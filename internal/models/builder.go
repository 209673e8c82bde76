package models

import "time"

// Builder is a build worker.
type Builder struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"size:64;uniqueIndex;not null"`
	URL          string `gorm:"size:255"`
	Processor    string `gorm:"size:32;index;not null"`
	Virtualized  bool
	BuilderOK    bool `gorm:"column:builderok"`
	Manual       bool
	FailureCount int
	FailNotes    string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Builder) TableName() string { return "builders" }
