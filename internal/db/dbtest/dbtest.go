// Package dbtest provides an in-memory database and row factories for tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/zulandar/buildyard/internal/db"
	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// Open creates an in-memory SQLite database with all tables migrated.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

// Factory creates rows with sensible defaults. Names are made unique with a
// per-factory counter.
type Factory struct {
	t  *testing.T
	db *gorm.DB
	n  int
}

// NewFactory returns a Factory bound to db.
func NewFactory(t *testing.T, db *gorm.DB) *Factory {
	return &Factory{t: t, db: db}
}

func (f *Factory) next(prefix string) string {
	f.n++
	return fmt.Sprintf("%s-%d", prefix, f.n)
}

func (f *Factory) create(v interface{}) {
	f.t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		f.t.Fatalf("create %T: %v", v, err)
	}
}

// Series creates a distro series with the given status.
func (f *Factory) Series(status string) *models.DistroSeries {
	f.t.Helper()
	s := &models.DistroSeries{Name: f.next("series"), Status: status}
	f.create(s)
	return s
}

// Arch creates an architecture for series.
func (f *Factory) Arch(series *models.DistroSeries, tag, processor string) *models.DistroArchSeries {
	f.t.Helper()
	a := &models.DistroArchSeries{DistroSeriesID: series.ID, ArchTag: tag, Processor: processor}
	f.create(a)
	a.DistroSeries = series
	return a
}

// Archive creates an enabled archive with the given purpose. Mutate the
// returned value and call Save to change flags.
func (f *Factory) Archive(purpose string) *models.Archive {
	f.t.Helper()
	a := &models.Archive{Name: f.next("archive"), Purpose: purpose, Enabled: true}
	f.create(a)
	return a
}

// Save persists every field of v.
func (f *Factory) Save(v interface{}) {
	f.t.Helper()
	if err := f.db.Save(v).Error; err != nil {
		f.t.Fatalf("save %T: %v", v, err)
	}
}

// Builder creates an OK, automatic builder.
func (f *Factory) Builder(processor string, virtualized bool) *models.Builder {
	f.t.Helper()
	b := &models.Builder{
		Name:        f.next("builder-" + processor),
		Processor:   processor,
		Virtualized: virtualized,
		BuilderOK:   true,
	}
	f.create(b)
	return b
}

// Publication creates a source publication with the given status.
func (f *Factory) Publication(archive *models.Archive, series *models.DistroSeries, name, version, status string) *models.SourcePublication {
	f.t.Helper()
	p := &models.SourcePublication{
		ArchiveID:      archive.ID,
		DistroSeriesID: series.ID,
		SourceName:     name,
		Version:        version,
		Component:      "main",
		Urgency:        "low",
		Pocket:         models.PocketRelease,
		Status:         status,
		DateCreated:    time.Now(),
	}
	f.create(p)
	return p
}

// Queued creates a NEEDSBUILD build with a WAITING queue entry carrying
// score. The entry inherits the arch's processor and the archive's
// virtualization requirement.
func (f *Factory) Queued(archive *models.Archive, arch *models.DistroArchSeries, name, version string, score int) (*models.Build, *models.BuildQueue) {
	f.t.Helper()
	b := &models.Build{
		ArchiveID:          archive.ID,
		DistroArchSeriesID: arch.ID,
		SourceName:         name,
		SourceVersion:      version,
		Pocket:             models.PocketRelease,
		Status:             models.BuildNeedsBuild,
		DateCreated:        time.Now(),
	}
	f.create(b)
	q := &models.BuildQueue{
		BuildID:     b.ID,
		LastScore:   score,
		Processor:   arch.Processor,
		Virtualized: archive.RequireVirtualized,
		JobStatus:   models.JobWaiting,
	}
	f.create(q)
	return b, q
}

// Building creates a build already BUILDING on builder (which may be nil
// for builds whose queue entry has gone). It carries a unique dispatch
// cookie.
func (f *Factory) Building(archive *models.Archive, arch *models.DistroArchSeries, name string, builder *models.Builder) *models.Build {
	f.t.Helper()
	now := time.Now()
	b := &models.Build{
		ArchiveID:          archive.ID,
		DistroArchSeriesID: arch.ID,
		SourceName:         name,
		SourceVersion:      "1.0-1",
		Pocket:             models.PocketRelease,
		Status:             models.BuildBuilding,
		DispatchCookie:     f.next("cookie"),
		DateCreated:        now,
		DateStarted:        &now,
	}
	if builder != nil {
		b.BuilderID = &builder.ID
	}
	f.create(b)
	if builder != nil {
		q := &models.BuildQueue{
			BuildID:     b.ID,
			BuilderID:   &builder.ID,
			Processor:   arch.Processor,
			Virtualized: archive.RequireVirtualized,
			JobStatus:   models.JobRunning,
			DateStarted: &now,
		}
		f.create(q)
	}
	return b
}
