package coach

import (
	"testing"
	"time"
)

func TestDetectFood(t *testing.T) {
	positives := []string{
		"ate 2 parathas with butter for breakfast",
		"just had biryani",
		"abhi khaya dal chawal",
		"lunch: rajma rice",
		"maggi",
		"2 idlis with sambar",
	}
	for _, msg := range positives {
		if !DetectFood(msg) {
			t.Errorf("DetectFood(%q) = false, want true", msg)
		}
	}

	negatives := []string{
		"how are you",
		"what time is it",
		"I went for a run this morning and then read a long article about training plans online",
	}
	for _, msg := range negatives {
		if DetectFood(msg) {
			t.Errorf("DetectFood(%q) = true, want false", msg)
		}
	}
}

func TestDetectWater(t *testing.T) {
	if !DetectWater("drank water") {
		t.Fatalf("expected water detection")
	}
	if !DetectWater("2 glass paani piya") {
		t.Fatalf("expected hinglish water detection")
	}
	if DetectWater("had poha") {
		t.Fatalf("unexpected water detection on food")
	}
}

func TestWaterAmountML(t *testing.T) {
	cases := []struct {
		msg  string
		want int64
	}{
		{"water", 250},
		{"drank 3 glasses of water", 750},
		{"500ml water done", 500},
		{"had 1.5 litres water today", 1500},
		{"2l paani", 2000},
		{"drank 99 glasses", 250},
	}
	for _, tc := range cases {
		if got := WaterAmountML(tc.msg); got != tc.want {
			t.Errorf("WaterAmountML(%q) = %d, want %d", tc.msg, got, tc.want)
		}
	}
}

func TestDetectSummaryAndSuggestion(t *testing.T) {
	if !DetectSummaryRequest("what did I eat today") {
		t.Fatalf("expected summary detection")
	}
	if !DetectSummaryRequest("weekly summary please") {
		t.Fatalf("expected weekly summary detection")
	}
	if !DetectMealSuggestion("what should I eat for dinner") {
		t.Fatalf("expected suggestion detection")
	}
	if !DetectMealSuggestion("feeling like eating something sweet") {
		t.Fatalf("expected craving detection")
	}
	if DetectMealSuggestion("logged my breakfast already") {
		t.Fatalf("unexpected suggestion detection")
	}
}

func TestDetectHelp(t *testing.T) {
	for _, msg := range []string{"help", "?", "Commands", "what can you do"} {
		if !DetectHelp(msg) {
			t.Errorf("DetectHelp(%q) = false, want true", msg)
		}
	}
	if DetectHelp("help me pick dinner") {
		t.Fatalf("help detection should require the bare command")
	}
}

func TestMealTypeForHour(t *testing.T) {
	cases := map[int]string{
		6:  "breakfast",
		10: "breakfast",
		12: "lunch",
		16: "snack",
		19: "dinner",
		23: "late_night",
		2:  "late_night",
	}
	for hour, want := range cases {
		if got := MealTypeForHour(hour); got != want {
			t.Errorf("MealTypeForHour(%d) = %q, want %q", hour, got, want)
		}
	}
}

func TestAssess_Precedence(t *testing.T) {
	c := New(time.FixedZone("IST", 5*3600+1800))
	// 09:00 IST → breakfast slot.
	now := time.Date(2026, 3, 10, 3, 30, 0, 0, time.UTC)

	a := c.Assess("help", now)
	if !a.Help || a.Food || a.Water {
		t.Fatalf("help should win outright: %+v", a)
	}

	// "water" alone is hydration, not food.
	a = c.Assess("drank 2 glasses of water", now)
	if !a.Water || a.Food {
		t.Fatalf("expected water-only assessment: %+v", a)
	}
	if a.WaterML != 500 {
		t.Fatalf("WaterML = %d, want 500", a.WaterML)
	}

	// A meal mentioning water still counts as food.
	a = c.Assess("had poha and a glass of water for breakfast", now)
	if !a.Food {
		t.Fatalf("expected food assessment: %+v", a)
	}
	if a.MealType != "breakfast" {
		t.Fatalf("MealType = %q, want breakfast", a.MealType)
	}

	a = c.Assess("what should I eat tonight", now)
	if !a.MealSuggestion || a.Food {
		t.Fatalf("expected suggestion-only assessment: %+v", a)
	}
}

func TestNonTextReply(t *testing.T) {
	if NonTextReply("image") == NonTextReply("audio") {
		t.Fatalf("expected distinct media replies")
	}
	if NonTextReply("sticker") == "" {
		t.Fatalf("expected default media reply")
	}
}
