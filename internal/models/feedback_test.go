package models

import "testing"

func TestFeedbackTypeValid(t *testing.T) {
	for _, ft := range FeedbackTypes {
		if !ft.Valid() {
			t.Errorf("%q should be valid", ft)
		}
	}
	for _, ft := range []FeedbackType{"angry", "HAPPY", "", "happy "} {
		if ft.Valid() {
			t.Errorf("%q should be invalid", ft)
		}
	}
}

func TestStatsAddAndCount(t *testing.T) {
	s := &Stats{}
	s.Add(FeedbackHappy, 2)
	s.Add(FeedbackConfused, 1)
	s.Add(FeedbackType("angry"), 5) // unknown types are ignored

	if s.Total != 3 {
		t.Fatalf("total: want 3, got %d", s.Total)
	}
	if s.Count(FeedbackHappy) != 2 || s.Count(FeedbackConfused) != 1 {
		t.Fatalf("counts: got %+v", s)
	}
	if s.Count(FeedbackSad) != 0 {
		t.Fatalf("untouched type: want 0, got %d", s.Count(FeedbackSad))
	}
}

func TestComputePercentsRoundsEachTypeIndependently(t *testing.T) {
	s := &Stats{}
	s.Add(FeedbackHappy, 1)
	s.Add(FeedbackSad, 1)
	s.Add(FeedbackSurprised, 1)
	s.ComputePercents()

	// 1/3 rounds to 33 per type; the sum intentionally misses 100
	if s.HappyPercent != 33 || s.SadPercent != 33 || s.SurprisedPercent != 33 {
		t.Fatalf("thirds: got %+v", s)
	}
	if s.ConfusedPercent != 0 {
		t.Fatalf("empty type percent: want 0, got %d", s.ConfusedPercent)
	}
}

func TestComputePercentsHalfRoundsUp(t *testing.T) {
	s := &Stats{}
	s.Add(FeedbackHappy, 1)
	s.Add(FeedbackSad, 7)
	s.ComputePercents()

	// 1/8 = 12.5 rounds to 13, 7/8 = 87.5 rounds to 88
	if s.HappyPercent != 13 || s.SadPercent != 88 {
		t.Fatalf("rounding: got happy=%d sad=%d", s.HappyPercent, s.SadPercent)
	}
}

func TestComputePercentsZeroTotal(t *testing.T) {
	s := &Stats{}
	s.ComputePercents()
	if s.HappyPercent != 0 || s.SadPercent != 0 || s.SurprisedPercent != 0 || s.ConfusedPercent != 0 {
		t.Fatalf("zero total must yield zero percents, got %+v", s)
	}
}
