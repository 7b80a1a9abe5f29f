package responder

import (
	"testing"
)

func TestSentiment(t *testing.T) {
	if s := Sentiment("thanks, all good"); s != 0 {
		t.Errorf("Expected neutral score, got %v", s)
	}
	if s := Sentiment("I'm a bit annoyed"); s != -0.3 {
		t.Errorf("Expected -0.3 for one mild word, got %v", s)
	}
	if s := Sentiment("this is ridiculous"); s != -0.6 {
		t.Errorf("Expected -0.6 for one strong word, got %v", s)
	}
	if s := Sentiment("ridiculous, unacceptable, useless"); s != -1 {
		t.Errorf("Expected the score to clamp at -1, got %v", s)
	}
}

func TestDetectEscalation(t *testing.T) {
	if e := DetectEscalation("can you check my bill"); e != nil {
		t.Errorf("Expected no escalation, got %+v", e)
	}

	e := DetectEscalation("let me talk to a real person")
	if e == nil || e.Kind != EffectHardHandoff {
		t.Errorf("Expected a hard handoff, got %+v", e)
	}

	// One mild word is not enough on its own.
	if e := DetectEscalation("I'm annoyed"); e != nil {
		t.Errorf("Expected no escalation for one mild word, got %+v", e)
	}

	e = DetectEscalation("I'm annoyed and upset, this keeps breaking")
	if e == nil || e.Kind != EffectSoftHandoff {
		t.Fatalf("Expected a soft handoff for stacked frustration, got %+v", e)
	}
	if e.Sentiment != -0.6 {
		t.Errorf("Expected sentiment -0.6, got %v", e.Sentiment)
	}

	// A human request beats frustration scoring.
	e = DetectEscalation("this is ridiculous, get me a human")
	if e == nil || e.Kind != EffectHardHandoff {
		t.Errorf("Expected the human request to win, got %+v", e)
	}
}
