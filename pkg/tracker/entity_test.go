package tracker

import (
	"testing"
	"time"
)

func TestMerge(t *testing.T) {
	checked := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	prev := Entity{
		ID:             "570",
		Name:           "Dota 2",
		ImageURL:       "https://cdn.example/570.jpg",
		LastCheckedAt:  checked.Add(-time.Hour),
		LastActivityAt: 1700000000,
		LiveCount:      500,
	}

	tests := []struct {
		name         string
		obs          Observation
		wantLive     int
		wantActivity int64
	}{
		{
			name:         "zero live count keeps prior",
			obs:          Observation{ActivityAt: 1700000000, LiveCount: 0, CheckedAt: checked},
			wantLive:     500,
			wantActivity: 1700000000,
		},
		{
			name:         "positive live count adopted",
			obs:          Observation{ActivityAt: 1700000000, LiveCount: 700, CheckedAt: checked},
			wantLive:     700,
			wantActivity: 1700000000,
		},
		{
			name:         "lower live count adopted",
			obs:          Observation{ActivityAt: 1700000000, LiveCount: 12, CheckedAt: checked},
			wantLive:     12,
			wantActivity: 1700000000,
		},
		{
			name:         "zero activity keeps prior",
			obs:          Observation{ActivityAt: 0, LiveCount: 700, CheckedAt: checked},
			wantLive:     700,
			wantActivity: 1700000000,
		},
		{
			name:         "newer activity adopted",
			obs:          Observation{ActivityAt: 1700050000, LiveCount: 0, CheckedAt: checked},
			wantLive:     500,
			wantActivity: 1700050000,
		},
		{
			name:         "older activity from stale relay adopted",
			obs:          Observation{ActivityAt: 1690000000, LiveCount: 0, CheckedAt: checked},
			wantLive:     500,
			wantActivity: 1690000000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(prev, tt.obs)

			if got.LiveCount != tt.wantLive {
				t.Errorf("LiveCount = %d, want %d", got.LiveCount, tt.wantLive)
			}
			if got.LastActivityAt != tt.wantActivity {
				t.Errorf("LastActivityAt = %d, want %d", got.LastActivityAt, tt.wantActivity)
			}
			if !got.LastCheckedAt.Equal(checked) {
				t.Errorf("LastCheckedAt = %v, want %v", got.LastCheckedAt, checked)
			}
			if got.ID != prev.ID || got.Name != prev.Name || got.ImageURL != prev.ImageURL {
				t.Errorf("identity fields changed: %+v", got)
			}
		})
	}
}

func TestHasNewActivity(t *testing.T) {
	prev := Entity{ID: "570", LastActivityAt: 1700000000}

	tests := []struct {
		name    string
		fetched int64
		want    bool
	}{
		{name: "newer", fetched: 1700000001, want: true},
		{name: "equal", fetched: 1700000000, want: false},
		{name: "older", fetched: 1600000000, want: false},
		{name: "unknown", fetched: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasNewActivity(prev, tt.fetched); got != tt.want {
				t.Errorf("HasNewActivity(%d) = %v, want %v", tt.fetched, got, tt.want)
			}
		})
	}

	if !HasNewActivity(Entity{ID: "730"}, 1) {
		t.Error("Any known activity is new for an entity without activity")
	}
}

func TestOutcome_Settled(t *testing.T) {
	if !Success(Entity{ID: "1"}, false).Settled() {
		t.Error("Success should be settled")
	}
	if !Fatal("1", nil).Settled() {
		t.Error("Fatal should be settled")
	}
	if Transient("1", nil).Settled() {
		t.Error("Transient should not be settled")
	}

	o := Success(Entity{ID: "42"}, true)
	if o.ID != "42" || o.Kind != OutcomeSuccess || !o.HasNewActivity {
		t.Errorf("Success() = %+v", o)
	}
}
