package traffic

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(retention time.Duration) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(retention)
	tr.now = clock.now
	return tr, clock
}

func TestErrorRate_Empty(t *testing.T) {
	tr, _ := newTestTracker(0)
	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errs, total)
	}
}

func TestErrorRate_SuccessAndError(t *testing.T) {
	tr, _ := newTestTracker(0)
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordSuccess()
	tr.RecordError()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 1 || total != 4 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 4)", errs, total)
	}
}

func TestErrorRate_DeniedExcluded(t *testing.T) {
	tr, _ := newTestTracker(0)
	tr.RecordSuccess()
	tr.RecordDenied()
	tr.RecordDenied()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errs, total)
	}
	if got := tr.DenialCount(time.Minute); got != 2 {
		t.Errorf("DenialCount() = %d, want 2", got)
	}
}

func TestErrorRate_Window(t *testing.T) {
	tr, clock := newTestTracker(0)
	tr.RecordError()
	clock.advance(90 * time.Second)
	tr.RecordSuccess()

	errs, total := tr.ErrorRate(time.Minute)
	if errs != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", errs, total)
	}
	errs, total = tr.ErrorRate(2 * time.Minute)
	if errs != 1 || total != 2 {
		t.Errorf("ErrorRate(2m) = (%d, %d), want (1, 2)", errs, total)
	}
}

func TestPruneOnRecord(t *testing.T) {
	tr, clock := newTestTracker(time.Minute)
	tr.RecordError()
	tr.RecordError()
	clock.advance(2 * time.Minute)
	tr.RecordSuccess()

	if len(tr.events) != 1 {
		t.Errorf("events after prune = %d, want 1", len(tr.events))
	}
}
