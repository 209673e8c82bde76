package dashboard

import (
	"fmt"
	"time"

	"github.com/zulandar/buildyard/internal/models"
	"gorm.io/gorm"
)

// BuilderRow holds builder data for display.
type BuilderRow struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Processor    string `json:"processor"`
	Virtualized  bool   `json:"virtualized"`
	OK           bool   `json:"ok"`
	Manual       bool   `json:"manual"`
	FailureCount int    `json:"failure_count"`
	FailNotes    string `json:"fail_notes,omitempty"`
	BuildID      *uint  `json:"build_id,omitempty"`
	Source       string `json:"source,omitempty"`
	Version      string `json:"version,omitempty"`
}

// BuilderSummary returns every builder with the build it is running, if any.
func BuilderSummary(db *gorm.DB) ([]BuilderRow, error) {
	var rows []BuilderRow
	err := db.Table("builders").
		Select(`builders.id, builders.name, builders.processor, builders.virtualized,
			builders.builderok AS ok, builders.manual, builders.failure_count, builders.fail_notes,
			b.id AS build_id, COALESCE(b.source_name, '') AS source, COALESCE(b.source_version, '') AS version`).
		Joins("LEFT JOIN build_queues bq ON bq.builder_id = builders.id").
		Joins("LEFT JOIN builds b ON b.id = bq.build_id").
		Order("builders.processor ASC, builders.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("dashboard: builder summary: %w", err)
	}
	return rows, nil
}

// QueueRow holds one queue entry for display.
type QueueRow struct {
	QueueID     uint       `json:"queue_id"`
	BuildID     uint       `json:"build_id"`
	Source      string     `json:"source"`
	Version     string     `json:"version"`
	Archive     string     `json:"archive"`
	ArchTag     string     `json:"arch_tag"`
	Processor   string     `json:"processor"`
	Virtualized bool       `json:"virtualized"`
	Score       int        `json:"score"`
	Manual      bool       `json:"manual"`
	JobStatus   string     `json:"job_status"`
	Builder     string     `json:"builder,omitempty"`
	DateStarted *time.Time `json:"date_started,omitempty"`
}

// QueueFilter narrows QueueRows. Empty fields match everything.
type QueueFilter struct {
	Status    string
	Processor string
	Limit     int
}

// QueueRows returns queue entries, running ones first, then by dispatch
// order.
func QueueRows(db *gorm.DB, filter QueueFilter) ([]QueueRow, error) {
	q := db.Table("build_queues bq").
		Select(`bq.id AS queue_id, b.id AS build_id, b.source_name AS source, b.source_version AS version,
			a.name AS archive, das.arch_tag, bq.processor, bq.virtualized, bq.last_score AS score,
			bq.manual, bq.job_status, COALESCE(br.name, '') AS builder, bq.date_started`).
		Joins("JOIN builds b ON b.id = bq.build_id").
		Joins("JOIN archives a ON a.id = b.archive_id").
		Joins("JOIN distro_arch_series das ON das.id = b.distro_arch_series_id").
		Joins("LEFT JOIN builders br ON br.id = bq.builder_id")
	if filter.Status != "" {
		q = q.Where("bq.job_status = ?", filter.Status)
	}
	if filter.Processor != "" {
		q = q.Where("bq.processor = ?", filter.Processor)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []QueueRow
	if err := q.Order("bq.job_status ASC, bq.last_score DESC, bq.id ASC").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("dashboard: queue rows: %w", err)
	}
	return rows, nil
}

// QueueDepth returns the number of waiting entries per processor. Entries
// without a processor are counted under "".
func QueueDepth(db *gorm.DB) (map[string]int64, error) {
	type row struct {
		Processor string
		Count     int64
	}
	var rows []row
	if err := db.Model(&models.BuildQueue{}).
		Select("processor, count(*) AS count").
		Where("job_status = ?", models.JobWaiting).
		Group("processor").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("dashboard: queue depth: %w", err)
	}

	depth := make(map[string]int64, len(rows))
	for _, r := range rows {
		depth[r.Processor] = r.Count
	}
	return depth, nil
}

// BuildDetail is the full view of one build.
type BuildDetail struct {
	ID                  uint       `json:"id"`
	Source              string     `json:"source"`
	Version             string     `json:"version"`
	Archive             string     `json:"archive"`
	Series              string     `json:"series"`
	ArchTag             string     `json:"arch_tag"`
	Pocket              string     `json:"pocket"`
	Status              string     `json:"status"`
	Builder             string     `json:"builder,omitempty"`
	DispatchCookie      string     `json:"dispatch_cookie,omitempty"`
	FailureCount        int        `json:"failure_count"`
	DateCreated         time.Time  `json:"date_created"`
	DateFirstDispatched *time.Time `json:"date_first_dispatched,omitempty"`
	DateStarted         *time.Time `json:"date_started,omitempty"`
	DateFinished        *time.Time `json:"date_finished,omitempty"`
	Queue               *QueueInfo `json:"queue,omitempty"`
}

// QueueInfo is the queue state of a build that has not finished.
type QueueInfo struct {
	ID        uint   `json:"id"`
	Score     int    `json:"score"`
	Manual    bool   `json:"manual"`
	JobStatus string `json:"job_status"`
	Logtail   string `json:"logtail,omitempty"`
}

// GetBuildDetail loads a build for display. It returns nil if the build
// does not exist.
func GetBuildDetail(db *gorm.DB, id uint) (*BuildDetail, error) {
	var build models.Build
	res := db.Preload("Archive").Preload("DistroArchSeries.DistroSeries").Preload("Builder").
		Where("id = ?", id).Limit(1).Find(&build)
	if res.Error != nil {
		return nil, fmt.Errorf("dashboard: build %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	d := &BuildDetail{
		ID:                  build.ID,
		Source:              build.SourceName,
		Version:             build.SourceVersion,
		Pocket:              build.Pocket,
		Status:              build.Status,
		DispatchCookie:      build.DispatchCookie,
		FailureCount:        build.FailureCount,
		DateCreated:         build.DateCreated,
		DateFirstDispatched: build.DateFirstDispatched,
		DateStarted:         build.DateStarted,
		DateFinished:        build.DateFinished,
	}
	if build.Archive != nil {
		d.Archive = build.Archive.Name
	}
	if das := build.DistroArchSeries; das != nil {
		d.ArchTag = das.ArchTag
		if das.DistroSeries != nil {
			d.Series = das.DistroSeries.Name
		}
	}
	if build.Builder != nil {
		d.Builder = build.Builder.Name
	}

	var entry models.BuildQueue
	res = db.Where("build_id = ?", id).Limit(1).Find(&entry)
	if res.Error != nil {
		return nil, fmt.Errorf("dashboard: queue entry of build %d: %w", id, res.Error)
	}
	if res.RowsAffected > 0 {
		d.Queue = &QueueInfo{
			ID:        entry.ID,
			Score:     entry.LastScore,
			Manual:    entry.Manual,
			JobStatus: entry.JobStatus,
			Logtail:   entry.Logtail,
		}
	}
	return d, nil
}
