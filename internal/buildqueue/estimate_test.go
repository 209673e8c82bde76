package buildqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/buildyard/internal/models"
)

func estimate(t *testing.T, fx *fixture, queueID uint, now time.Time) *time.Time {
	t.Helper()
	got, err := EstimatedStartTime(fx.db, queueID, now)
	if err != nil {
		t.Fatalf("EstimatedStartTime: %v", err)
	}
	return got
}

func setDuration(fx *fixture, queueID uint, d time.Duration) {
	fx.db.Model(&models.BuildQueue{}).Where("id = ?", queueID).Update("estimated_duration", int(d/time.Second))
}

func TestEstimatedStartTime_NoBuilders(t *testing.T) {
	fx := newFixture(t)
	_, q := fx.queue(fx.primary, fx.amd64, "pkg", 10)
	fx.f.Builder("arm", false)

	if got := estimate(t, fx, q.ID, time.Now()); got != nil {
		t.Errorf("estimate = %v, want nil without amd64 builders", got)
	}
}

func TestEstimatedStartTime_IdleBuilder(t *testing.T) {
	fx := newFixture(t)
	fx.f.Builder("amd64", false)
	_, q := fx.queue(fx.primary, fx.amd64, "pkg", 10)

	now := time.Now()
	got := estimate(t, fx, q.ID, now)
	if got == nil || !got.Equal(now.Add(MinimumStartDelay)) {
		t.Errorf("estimate = %v, want now+%s", got, MinimumStartDelay)
	}
}

func TestEstimatedStartTime_BusyBuilder(t *testing.T) {
	fx := newFixture(t)
	builder := fx.f.Builder("amd64", false)
	running := fx.f.Building(fx.primary, fx.amd64, "running", builder)
	_, q := fx.queue(fx.primary, fx.amd64, "pkg", 10)

	now := time.Now()
	started := now.Add(-4 * time.Minute)
	fx.db.Model(&models.BuildQueue{}).Where("build_id = ?", running.ID).Updates(map[string]interface{}{
		"estimated_duration": 600,
		"date_started":       started,
	})

	got := estimate(t, fx, q.ID, now)
	if got == nil {
		t.Fatal("expected an estimate")
	}
	if d := got.Sub(now); d < 6*time.Minute-time.Second || d > 6*time.Minute+time.Second {
		t.Errorf("delay = %s, want about 6m", d)
	}
}

func TestEstimatedStartTime_OverdrawnJob(t *testing.T) {
	fx := newFixture(t)
	builder := fx.f.Builder("amd64", false)
	running := fx.f.Building(fx.primary, fx.amd64, "running", builder)
	_, q := fx.queue(fx.primary, fx.amd64, "pkg", 10)

	now := time.Now()
	fx.db.Model(&models.BuildQueue{}).Where("build_id = ?", running.ID).Updates(map[string]interface{}{
		"estimated_duration": 60,
		"date_started":       now.Add(-time.Hour),
	})

	got := estimate(t, fx, q.ID, now)
	if got == nil || got.Sub(now) != OverdrawnJobRemaining {
		t.Errorf("estimate = %v, want now+%s", got, OverdrawnJobRemaining)
	}
}

func TestEstimatedStartTime_JobsAhead(t *testing.T) {
	fx := newFixture(t)
	fx.f.Builder("amd64", false)
	fx.f.Builder("amd64", false)

	_, a := fx.queue(fx.primary, fx.amd64, "a", 100)
	_, b := fx.queue(fx.primary, fx.amd64, "b", 100)
	_, c := fx.queue(fx.primary, fx.amd64, "c", 100)
	_, other := fx.queue(fx.primary, fx.armhf, "arm", 1000)
	setDuration(fx, a.ID, 10*time.Minute)
	setDuration(fx, b.ID, 20*time.Minute)
	setDuration(fx, other.ID, time.Hour)

	now := time.Now()
	// a and b are ahead of c; two builders share their 30 minutes.
	got := estimate(t, fx, c.ID, now)
	if got == nil || got.Sub(now) != 15*time.Minute {
		t.Errorf("estimate for c = %v, want now+15m", got)
	}
	// a is at the head.
	got = estimate(t, fx, a.ID, now)
	if got == nil || got.Sub(now) != MinimumStartDelay {
		t.Errorf("estimate for a = %v, want now+%s", got, MinimumStartDelay)
	}
}

func TestEstimatedStartTime_NotWaiting(t *testing.T) {
	fx := newFixture(t)
	builder := fx.f.Builder("amd64", false)
	_, q := fx.queue(fx.primary, fx.amd64, "pkg", 10)
	if _, err := AcquireCandidate(fx.db, builder.ID, DefaultPolicy()); err != nil {
		t.Fatalf("AcquireCandidate: %v", err)
	}

	if _, err := EstimatedStartTime(fx.db, q.ID, time.Now()); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("error = %v, want ErrNotWaiting", err)
	}
	if _, err := EstimatedStartTime(fx.db, 999, time.Now()); err == nil {
		t.Error("expected error for missing entry")
	}
}
