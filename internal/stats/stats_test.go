package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/quaver-audio/quaver/internal/storage"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testTrack(id string) Track {
	return Track{ID: id, Title: "Title " + id, Artist: "Artist A", Album: "Album X"}
}

func TestShortSessionDiscarded(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	tr.StartTracking(testTrack("t1"))
	clock.advance(29 * time.Second)
	tr.StopTracking()

	if got := tr.TopTracks(10); len(got) != 0 {
		t.Fatalf("29s session committed: %+v", got)
	}
	if total, _ := tr.Totals(); total != 0 {
		t.Fatalf("total = %v, want 0", total)
	}
}

func TestThresholdSessionCommits(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	tr.StartTracking(testTrack("t1"))
	clock.advance(30 * time.Second)
	tr.StopTracking()

	top := tr.TopTracks(10)
	if len(top) != 1 {
		t.Fatalf("tracks = %d, want 1", len(top))
	}
	if top[0].Key != "t1" || top[0].Entry.PlayCount != 1 {
		t.Fatalf("entry = %+v", top[0])
	}
	if top[0].Entry.TotalSeconds != 30 {
		t.Fatalf("seconds = %v, want 30", top[0].Entry.TotalSeconds)
	}
	if total, _ := tr.Totals(); total != 30 {
		t.Fatalf("total = %v, want 30", total)
	}
}

func TestPauseResumeAccumulates(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	tr.StartTracking(testTrack("t1"))
	clock.advance(20 * time.Second)
	tr.PauseTracking()
	clock.advance(5 * time.Minute) // paused time must not count
	tr.ResumeTracking()
	clock.advance(15 * time.Second)
	tr.StopTracking()

	top := tr.TopTracks(1)
	if len(top) != 1 || top[0].Entry.TotalSeconds != 35 {
		t.Fatalf("top = %+v, want one entry with 35s", top)
	}
	if top[0].Entry.PlayCount != 1 {
		t.Fatalf("playCount = %d, want 1", top[0].Entry.PlayCount)
	}
}

func TestCommittedSessionResumesWithoutSecondPlay(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	tr.StartTracking(testTrack("t1"))
	clock.advance(40 * time.Second)
	tr.PauseTracking() // commits
	tr.ResumeTracking()
	clock.advance(20 * time.Second)
	tr.StopTracking()

	top := tr.TopTracks(1)
	if len(top) != 1 {
		t.Fatalf("tracks = %d, want 1", len(top))
	}
	if top[0].Entry.PlayCount != 1 {
		t.Fatalf("playCount = %d, want 1", top[0].Entry.PlayCount)
	}
	if top[0].Entry.TotalSeconds != 60 {
		t.Fatalf("seconds = %v, want 60", top[0].Entry.TotalSeconds)
	}
	if hist := tr.RecentHistory(10); len(hist) != 1 {
		t.Fatalf("history = %d, want 1", len(hist))
	}
}

func TestStartTrackingStopsPrevious(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	tr.StartTracking(testTrack("t1"))
	clock.advance(45 * time.Second)
	tr.StartTracking(testTrack("t2"))
	clock.advance(45 * time.Second)
	tr.StopTracking()

	top := tr.TopTracks(10)
	if len(top) != 2 {
		t.Fatalf("tracks = %d, want 2", len(top))
	}
	if total, _ := tr.Totals(); total != 90 {
		t.Fatalf("total = %v, want 90", total)
	}
}

func TestEmptyTrackIDIgnored(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	tr.StartTracking(Track{Title: "no id"})
	clock.advance(time.Minute)
	tr.StopTracking()

	if got := tr.TopTracks(10); len(got) != 0 {
		t.Fatalf("session without id committed: %+v", got)
	}
}

func TestArtistAndAlbumAggregates(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	for _, id := range []string{"t1", "t2"} {
		tr.StartTracking(Track{ID: id, Title: id, Artist: "Artist A", Album: "Album X"})
		clock.advance(time.Minute)
		tr.StopTracking()
	}

	artists := tr.TopArtists(10)
	if len(artists) != 1 || artists[0].Entry.PlayCount != 2 {
		t.Fatalf("artists = %+v", artists)
	}
	albums := tr.TopAlbums(10)
	if len(albums) != 1 || albums[0].Entry.TotalSeconds != 120 {
		t.Fatalf("albums = %+v", albums)
	}
}

func TestTopOrderedByPlayCount(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	plays := map[string]int{"t1": 1, "t2": 3, "t3": 2}
	for id, n := range plays {
		for i := 0; i < n; i++ {
			tr.StartTracking(testTrack(id))
			clock.advance(time.Minute)
			tr.StopTracking()
		}
	}

	top := tr.TopTracks(2)
	if len(top) != 2 || top[0].Key != "t2" || top[1].Key != "t3" {
		t.Fatalf("top = %+v", top)
	}
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	clock := newFakeClock()
	tr := NewWithClock(storage.NewMemStore(), clock.now)

	for i := 0; i < MaxHistoryEntries+1; i++ {
		tr.StartTracking(testTrack(fmt.Sprintf("t%04d", i)))
		clock.advance(time.Minute)
		tr.StopTracking()
	}

	hist := tr.RecentHistory(MaxHistoryEntries + 10)
	if len(hist) != MaxHistoryEntries {
		t.Fatalf("history = %d, want %d", len(hist), MaxHistoryEntries)
	}
	// Newest first; the very first session must have been evicted.
	if hist[0].TrackID != fmt.Sprintf("t%04d", MaxHistoryEntries) {
		t.Fatalf("newest = %s", hist[0].TrackID)
	}
	if hist[len(hist)-1].TrackID != "t0001" {
		t.Fatalf("oldest = %s, want t0001", hist[len(hist)-1].TrackID)
	}
}

func TestPersistAndReload(t *testing.T) {
	clock := newFakeClock()
	store := storage.NewMemStore()

	tr := NewWithClock(store, clock.now)
	tr.StartTracking(testTrack("t1"))
	clock.advance(time.Minute)
	tr.StopTracking()

	again := NewWithClock(store, clock.now)
	top := again.TopTracks(10)
	if len(top) != 1 || top[0].Key != "t1" {
		t.Fatalf("reloaded top = %+v", top)
	}
	if total, _ := again.Totals(); total != 60 {
		t.Fatalf("reloaded total = %v", total)
	}
}

func TestClearWipesEverything(t *testing.T) {
	clock := newFakeClock()
	store := storage.NewMemStore()
	tr := NewWithClock(store, clock.now)

	tr.StartTracking(testTrack("t1"))
	clock.advance(time.Minute)
	tr.StopTracking()
	tr.Clear()

	if got := tr.TopTracks(10); len(got) != 0 {
		t.Fatalf("tracks after clear: %+v", got)
	}
	if got := tr.RecentHistory(10); len(got) != 0 {
		t.Fatalf("history after clear: %+v", got)
	}

	again := NewWithClock(store, clock.now)
	if total, _ := again.Totals(); total != 0 {
		t.Fatalf("cleared state not persisted, total = %v", total)
	}
}
