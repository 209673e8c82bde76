package archive

import (
	"strings"
	"testing"

	"github.com/zulandar/buildyard/internal/buildqueue"
	"github.com/zulandar/buildyard/internal/db/dbtest"
	"github.com/zulandar/buildyard/internal/models"
)

func TestCreateArchive(t *testing.T) {
	gdb := dbtest.Open(t)

	a, err := CreateArchive(gdb, CreateOpts{Name: "ppa-alice", Owner: "alice", RequireVirtualized: true})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if a.Purpose != models.ArchivePPA || !a.Enabled || !a.RequireVirtualized {
		t.Errorf("archive = %+v", a)
	}

	tests := []struct {
		name    string
		opts    CreateOpts
		wantErr string
	}{
		{name: "no name", opts: CreateOpts{}, wantErr: "name is required"},
		{name: "bad purpose", opts: CreateOpts{Name: "x", Purpose: "MIRROR"}, wantErr: `invalid purpose "MIRROR"`},
		{name: "duplicate", opts: CreateOpts{Name: "ppa-alice"}, wantErr: "create ppa-alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateArchive(gdb, tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetEnabledAndList(t *testing.T) {
	gdb := dbtest.Open(t)
	CreateArchive(gdb, CreateOpts{Name: "primary", Purpose: models.ArchivePrimary})
	CreateArchive(gdb, CreateOpts{Name: "copy-rebuild", Purpose: models.ArchiveCopy})

	if err := SetEnabled(gdb, "copy-rebuild", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	a, err := GetArchive(gdb, "copy-rebuild")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if a.Enabled {
		t.Error("archive should be disabled")
	}
	if err := SetEnabled(gdb, "nope", true); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}
	if _, err := GetArchive(gdb, "nope"); err == nil {
		t.Error("expected error for missing archive")
	}

	all, err := ListArchives(gdb)
	if err != nil || len(all) != 2 || all[0].Name != "copy-rebuild" {
		t.Errorf("ListArchives = %+v, %v", all, err)
	}
}

func TestEnsureSeries(t *testing.T) {
	gdb := dbtest.Open(t)

	s, err := EnsureDistroSeries(gdb, "noble", models.SeriesCurrent)
	if err != nil {
		t.Fatalf("EnsureDistroSeries: %v", err)
	}
	again, err := EnsureDistroSeries(gdb, "noble", models.SeriesObsolete)
	if err != nil {
		t.Fatalf("EnsureDistroSeries again: %v", err)
	}
	if again.ID != s.ID || again.Status != models.SeriesCurrent {
		t.Errorf("second ensure = %+v, want existing CURRENT series", again)
	}
	if _, err := EnsureDistroSeries(gdb, "x", "RETIRED"); err == nil {
		t.Error("expected error for invalid status")
	}

	amd, err := EnsureArchSeries(gdb, s.ID, "amd64", "")
	if err != nil {
		t.Fatalf("EnsureArchSeries: %v", err)
	}
	if amd.Processor != "amd64" {
		t.Errorf("processor = %q, want amd64", amd.Processor)
	}
	if _, err := EnsureArchSeries(gdb, s.ID, "armhf", "arm"); err != nil {
		t.Fatalf("EnsureArchSeries armhf: %v", err)
	}
	amd2, _ := EnsureArchSeries(gdb, s.ID, "amd64", "")
	if amd2.ID != amd.ID {
		t.Errorf("EnsureArchSeries created a duplicate")
	}
	if _, err := EnsureArchSeries(gdb, 0, "amd64", ""); err == nil {
		t.Error("expected error without series")
	}

	got, err := GetDistroSeries(gdb, "noble")
	if err != nil || len(got.Architectures) != 2 {
		t.Fatalf("GetDistroSeries = %+v, %v", got, err)
	}

	if err := SetSeriesStatus(gdb, "noble", models.SeriesObsolete); err != nil {
		t.Fatalf("SetSeriesStatus: %v", err)
	}
	got, _ = GetDistroSeries(gdb, "noble")
	if got.Status != models.SeriesObsolete {
		t.Errorf("status = %s, want OBSOLETE", got.Status)
	}
	if err := SetSeriesStatus(gdb, "focal", models.SeriesObsolete); err == nil {
		t.Error("expected error for missing series")
	}
	if err := SetSeriesStatus(gdb, "noble", "GONE"); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestPublishSource_SupersedesOlder(t *testing.T) {
	gdb := dbtest.Open(t)
	f := dbtest.NewFactory(t, gdb)
	series := f.Series(models.SeriesCurrent)
	f.Arch(series, "amd64", "amd64")
	primary := f.Archive(models.ArchivePrimary)
	builder := f.Builder("amd64", false)

	old, err := PublishSource(gdb, PublishOpts{ArchiveID: primary.ID, DistroSeriesID: series.ID, SourceName: "hello", Version: "2.10-1"})
	if err != nil {
		t.Fatalf("PublishSource: %v", err)
	}
	if old.Status != models.PublicationPending || old.Component != "main" || old.Urgency != "low" {
		t.Errorf("publication = %+v", old)
	}
	if err := MarkPublished(gdb, old.ID); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	oldBuilds, err := CreateMissingBuilds(gdb, old.ID)
	if err != nil || len(oldBuilds) != 1 {
		t.Fatalf("CreateMissingBuilds = %d, %v", len(oldBuilds), err)
	}

	newer, err := PublishSource(gdb, PublishOpts{ArchiveID: primary.ID, DistroSeriesID: series.ID, SourceName: "hello", Version: "2.10-2"})
	if err != nil {
		t.Fatalf("PublishSource newer: %v", err)
	}
	var reloaded models.SourcePublication
	gdb.First(&reloaded, old.ID)
	if reloaded.Status != models.PublicationSuperseded || reloaded.DateSuperseded == nil {
		t.Errorf("old publication = %s, want SUPERSEDED", reloaded.Status)
	}

	newBuilds, err := CreateMissingBuilds(gdb, newer.ID)
	if err != nil || len(newBuilds) != 1 {
		t.Fatalf("CreateMissingBuilds newer = %d, %v", len(newBuilds), err)
	}

	// The old build is retired by the selector, the new one dispatched.
	c, err := buildqueue.FindCandidate(gdb, builder, buildqueue.DefaultPolicy())
	if err != nil {
		t.Fatalf("FindCandidate: %v", err)
	}
	if c == nil || c.Build.ID != newBuilds[0].ID {
		t.Fatalf("candidate = %+v, want build %d", c, newBuilds[0].ID)
	}
	var oldBuild models.Build
	gdb.First(&oldBuild, oldBuilds[0].ID)
	if oldBuild.Status != models.BuildSuperseded {
		t.Errorf("old build = %s, want SUPERSEDED", oldBuild.Status)
	}
}

func TestPublicationTransitions(t *testing.T) {
	gdb := dbtest.Open(t)
	f := dbtest.NewFactory(t, gdb)
	series := f.Series(models.SeriesCurrent)
	primary := f.Archive(models.ArchivePrimary)

	pub, _ := PublishSource(gdb, PublishOpts{ArchiveID: primary.ID, DistroSeriesID: series.ID, SourceName: "x", Version: "1"})

	if err := Supersede(gdb, pub.ID); err != nil {
		t.Fatalf("Supersede: %v", err)
	}
	if err := Supersede(gdb, pub.ID); err != nil {
		t.Errorf("second Supersede should be a no-op, got %v", err)
	}
	if err := MarkPublished(gdb, pub.ID); err == nil {
		t.Error("expected error publishing a superseded publication")
	}
	if _, err := CreateMissingBuilds(gdb, pub.ID); err == nil {
		t.Error("expected error creating builds for an inactive publication")
	}
	if err := Supersede(gdb, 999); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want not found", err)
	}

	found, err := FindPublication(gdb, primary.ID, series.ID, "x", "1")
	if err != nil || found.ID != pub.ID {
		t.Errorf("FindPublication = %+v, %v", found, err)
	}
	if _, err := FindPublication(gdb, primary.ID, series.ID, "x", "2"); err == nil {
		t.Error("expected error for missing version")
	}
}

func TestCreateMissingBuilds_SkipsExisting(t *testing.T) {
	gdb := dbtest.Open(t)
	f := dbtest.NewFactory(t, gdb)
	series := f.Series(models.SeriesCurrent)
	f.Arch(series, "amd64", "amd64")
	f.Arch(series, "arm64", "arm64")
	f.Arch(series, "riscv64", "riscv64")
	primary := f.Archive(models.ArchivePrimary)

	pub, _ := PublishSource(gdb, PublishOpts{ArchiveID: primary.ID, DistroSeriesID: series.ID, SourceName: "x", Version: "1"})
	first, err := CreateMissingBuilds(gdb, pub.ID)
	if err != nil || len(first) != 3 {
		t.Fatalf("first = %d, %v; want 3", len(first), err)
	}
	second, err := CreateMissingBuilds(gdb, pub.ID)
	if err != nil || len(second) != 0 {
		t.Fatalf("second = %d, %v; want 0", len(second), err)
	}
}

func TestPackagesets(t *testing.T) {
	gdb := dbtest.Open(t)
	f := dbtest.NewFactory(t, gdb)
	series := f.Series(models.SeriesCurrent)

	ps, err := AddPackageset(gdb, series.ID, "core", 500)
	if err != nil {
		t.Fatalf("AddPackageset: %v", err)
	}
	if _, err := AddPackageset(gdb, series.ID, "", 1); err == nil {
		t.Error("expected error without name")
	}
	if err := AddToPackageset(gdb, ps.ID, "glibc", "gcc"); err != nil {
		t.Fatalf("AddToPackageset: %v", err)
	}
	if err := AddToPackageset(gdb, ps.ID, "glibc", "systemd"); err != nil {
		t.Fatalf("AddToPackageset with existing member: %v", err)
	}
	if err := AddToPackageset(gdb, ps.ID); err != nil {
		t.Fatalf("AddToPackageset empty: %v", err)
	}

	var n int64
	gdb.Model(&models.PackagesetSource{}).Where("packageset_id = ?", ps.ID).Count(&n)
	if n != 3 {
		t.Errorf("members = %d, want 3", n)
	}
}
