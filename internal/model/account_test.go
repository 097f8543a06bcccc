package model

import "testing"

func TestClampEnforcesBounds(t *testing.T) {
	a := &Account{CoreSize: 0, QueueSize: 50, MaxQueueSize: 10, TimeoutMinutes: 1, IntervalSeconds: 999, AfterIntervalMin: 200, AfterIntervalMax: 50}
	a.Clamp()

	if a.CoreSize != 1 {
		t.Errorf("expected core size clamped to 1, got %d", a.CoreSize)
	}
	if a.QueueSize != a.MaxQueueSize {
		t.Errorf("expected queue size clamped to max %d, got %d", a.MaxQueueSize, a.QueueSize)
	}
	if a.TimeoutMinutes != 5 {
		t.Errorf("expected timeout clamped up to 5, got %d", a.TimeoutMinutes)
	}
	if a.IntervalSeconds != 180 {
		t.Errorf("expected interval clamped to 180, got %d", a.IntervalSeconds)
	}
	if a.AfterIntervalMax != a.AfterIntervalMin {
		t.Errorf("expected after-interval max raised to min (%d), got %d", a.AfterIntervalMin, a.AfterIntervalMax)
	}
}

func TestParseSubChannelsFiltersNoise(t *testing.T) {
	got := ParseSubChannels([]string{
		"https://discord.com/channels/g1/c1, not a channel url, https://discord.com/channels/g2/c2 trailing text",
	})

	if got["c1"] != "g1" || got["c2"] != "g2" {
		t.Fatalf("unexpected parse result: %#v", got)
	}
	if len(got) != 2 {
		t.Fatalf("expected exactly 2 entries, got %d", len(got))
	}
}

func TestRemixOnDetectsActiveToggle(t *testing.T) {
	on := []Component{{CustomID: "MJ::Settings::Remix", Label: "Remix mode"}}
	off := []Component{{CustomID: "MJ::Settings::HighVariationMode", Label: "High Variation Mode"}}

	if !RemixOn(on) {
		t.Fatal("expected remix to be detected as on")
	}
	if RemixOn(off) {
		t.Fatal("expected unrelated component not to report remix on")
	}
}

func TestTimeWindowsInWorkTimeEmptyMeansAlways(t *testing.T) {
	var ws TimeWindows
	if !ws.InWorkTime(720) {
		t.Fatal("expected empty work windows to mean always in work time")
	}
}

func TestTimeWindowCrossingMidnight(t *testing.T) {
	w := TimeWindow{Start: 22 * 60, End: 6 * 60}
	if !w.Contains(23 * 60) {
		t.Fatal("expected 23:00 to be inside a 22:00-06:00 window")
	}
	if !w.Contains(5 * 60) {
		t.Fatal("expected 05:00 to be inside a 22:00-06:00 window")
	}
	if w.Contains(12 * 60) {
		t.Fatal("expected noon to be outside a 22:00-06:00 window")
	}
}
