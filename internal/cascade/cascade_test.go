package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mendgate/internal/types"
)

// fakeClock lets tests advance time explicitly.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time            { return c.t }
func (c *fakeClock) advance(d time.Duration)   { c.t = c.t.Add(d) }

func newTestDetector() (*Detector, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)}
	return NewDetector(WithClock(clock.now)), clock
}

func TestIsFileHot(t *testing.T) {
	d, clock := newTestDetector()

	d.RecordModification("src/app.py")
	clock.advance(5 * time.Minute)
	d.RecordModification("src/app.py")
	assert.False(t, d.IsFileHot("src/app.py"), "two modifications are not hot")

	clock.advance(5 * time.Minute)
	d.RecordModification("src/app.py")
	assert.True(t, d.IsFileHot("src/app.py"), "three modifications within an hour are hot")
	assert.False(t, d.IsFileHot("src/other.py"))

	// Once the burst ages past the hour the file cools down.
	clock.advance(61 * time.Minute)
	assert.False(t, d.IsFileHot("src/app.py"))
}

func TestRetentionPurge(t *testing.T) {
	d, clock := newTestDetector()
	d.RecordModification("a.go")
	clock.advance(25 * time.Hour)
	d.RecordModification("b.go")

	d.mu.Lock()
	_, ok := d.modifications["a.go"]
	d.mu.Unlock()
	assert.False(t, ok, "records older than 24h are purged")
}

func TestCheckCascade(t *testing.T) {
	d, clock := newTestDetector()

	fix := types.SuggestedFix{
		ID:        "fix-1",
		AppliedAt: clock.now(),
		Action:    types.FixAction{AffectedFiles: []string{"src/db.py", "src/models.py"}},
	}
	d.RecordFix(fix)

	t.Run("attributes error on touched file within window", func(t *testing.T) {
		got := d.CheckCascade("src/db.py", clock.now().Add(10*time.Minute))
		require.NotNil(t, got)
		assert.Equal(t, "fix-1", got.ID)
	})

	t.Run("ignores untouched file", func(t *testing.T) {
		assert.Nil(t, d.CheckCascade("src/api.py", clock.now()))
	})

	t.Run("ignores error outside attribution window", func(t *testing.T) {
		assert.Nil(t, d.CheckCascade("src/db.py", clock.now().Add(45*time.Minute)))
	})

	t.Run("newest matching fix wins", func(t *testing.T) {
		clock.advance(2 * time.Minute)
		d.RecordFix(types.SuggestedFix{
			ID:        "fix-2",
			AppliedAt: clock.now(),
			Action:    types.FixAction{AffectedFiles: []string{"src/db.py"}},
		})
		got := d.CheckCascade("src/db.py", clock.now())
		require.NotNil(t, got)
		assert.Equal(t, "fix-2", got.ID)
	})
}

func TestRecordFixCountsTowardHotness(t *testing.T) {
	d, clock := newTestDetector()
	for i := 0; i < 3; i++ {
		d.RecordFix(types.SuggestedFix{
			ID:        "f",
			AppliedAt: clock.now(),
			Action:    types.FixAction{AffectedFiles: []string{"hot.go"}},
		})
		clock.advance(time.Minute)
	}
	assert.True(t, d.IsFileHot("hot.go"))
}

func TestReset(t *testing.T) {
	d, _ := newTestDetector()
	d.RecordModification("x")
	d.Reset()
	assert.False(t, d.IsFileHot("x"))
	assert.Nil(t, d.CheckCascade("x", time.Now()))
}
