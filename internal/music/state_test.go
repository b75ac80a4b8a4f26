package music

import "testing"

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()

	st1, created := r.GetOrCreate("g1")
	if !created {
		t.Error("first access should create the state")
	}
	if st1 == nil {
		t.Fatal("nil state")
	}
	if got := volumePercent(st1.volume); got != 100 {
		t.Errorf("fresh state volume = %d%%, want 100%%", got)
	}

	st2, created := r.GetOrCreate("g1")
	if created {
		t.Error("second access should reuse the state")
	}
	if st1 != st2 {
		t.Error("registry handed out a different state for the same guild")
	}

	other, _ := r.GetOrCreate("g2")
	if other == st1 {
		t.Error("distinct guilds share a state")
	}
}

func TestSnapshotCopies(t *testing.T) {
	st := newGuildState()
	st.queue = []Track{{Title: "a"}, {Title: "b"}}
	st.nowPlaying = &Track{Title: "now"}

	now, queue, volume := st.Snapshot()
	if now == nil || now.Title != "now" {
		t.Fatalf("snapshot now = %+v", now)
	}
	if len(queue) != 2 {
		t.Fatalf("snapshot queue length = %d", len(queue))
	}
	if volume != 100 {
		t.Errorf("snapshot volume = %d, want 100", volume)
	}

	// Mutating the copies must not touch the state.
	queue[0].Title = "mutated"
	now.Title = "mutated"
	if st.queue[0].Title != "a" || st.nowPlaying.Title != "now" {
		t.Error("snapshot leaked internal state")
	}
}
