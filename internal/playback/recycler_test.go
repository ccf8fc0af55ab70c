package playback_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gauthierbraillon/reelcast/internal/feed"
	"github.com/gauthierbraillon/reelcast/internal/playback"
	"github.com/gauthierbraillon/reelcast/internal/playback/playbacktest"
)

func TestRecycler_BoundsCells(t *testing.T) {
	r := playback.NewRecycler(&playbacktest.Engine{}, 2)

	a, err := r.Acquire()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Acquire(); !errors.Is(err, playback.ErrPoolExhausted) {
		t.Errorf("third acquire should exhaust the pool, got %v", err)
	}

	r.Release(a)
	again, err := r.Acquire()
	if err != nil {
		t.Fatalf("released cell should be reusable: %v", err)
	}
	if again != a {
		t.Error("recycler should hand back the released cell")
	}
}

func TestRecycler_ReleaseUnbinds(t *testing.T) {
	engine := &playbacktest.Engine{}
	r := playback.NewRecycler(engine, 3)

	cells := make([]*playback.Cell, 0, 3)
	for _, id := range []string{"i0", "i1", "i2"} {
		c, _ := r.Acquire()
		_ = c.Bind(context.Background(), item(id))
		cells = append(cells, c)
	}
	if r.Tracker().Live() != 3 {
		t.Fatalf("expected 3 live players, got %d", r.Tracker().Live())
	}

	r.Release(cells[0])

	if r.Tracker().Live() != 2 || r.InUse() != 2 {
		t.Errorf("live players should equal bound cells: live=%d inUse=%d", r.Tracker().Live(), r.InUse())
	}
	if cells[0].State() != playback.StateEmpty {
		t.Error("released cell should be unbound")
	}
}

func TestRecycler_FailedCellsHoldNoPlayer(t *testing.T) {
	broken := item("bad")
	engine := &playbacktest.Engine{Broken: map[string]bool{broken.MediaURL: true}}
	r := playback.NewRecycler(engine, 3)

	failed := 0
	for _, it := range []feed.Item{item("i0"), broken, item("i2")} {
		c, _ := r.Acquire()
		if err := c.Bind(context.Background(), it); err != nil {
			failed++
		}
	}

	if failed != 1 {
		t.Fatalf("expected 1 failed bind, got %d", failed)
	}
	if r.InUse() != 3 {
		t.Errorf("a failed cell stays bound to show its thumbnail, inUse=%d", r.InUse())
	}
	if live := r.Tracker().Live(); live != r.InUse()-failed {
		t.Errorf("live players should equal bound cells minus failed ones: live=%d inUse=%d", live, r.InUse())
	}
}

func TestRecycler_IgnoresForeignCells(t *testing.T) {
	r := playback.NewRecycler(&playbacktest.Engine{}, 1)
	foreign := playback.NewCell(&playbacktest.Engine{})

	r.Release(foreign)

	if r.InUse() != 0 {
		t.Error("releasing a foreign cell should not change the pool")
	}
	if _, err := r.Acquire(); err != nil {
		t.Errorf("pool should still have its one cell: %v", err)
	}
}

func TestRecycler_DefaultCapacity(t *testing.T) {
	r := playback.NewRecycler(&playbacktest.Engine{}, 0)
	if r.Capacity() != 3 {
		t.Errorf("default capacity should be 3, got %d", r.Capacity())
	}
}
