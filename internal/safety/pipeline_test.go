package safety

import (
	"strings"
	"testing"
)

func newTestPipeline() *Pipeline {
	return NewPipeline(NewClassifier(nil), nil)
}

func TestWrapPromptIncludesMarkerForEmergency(t *testing.T) {
	p := newTestPipeline()
	wrapped := p.WrapPrompt("I am bleeding and trapped, help")
	if !strings.Contains(wrapped, emergencyMarker) {
		t.Fatalf("expected emergency marker in wrapped prompt:\n%s", wrapped)
	}
	if !strings.Contains(wrapped, "I am bleeding and trapped, help") {
		t.Fatalf("user text missing from wrapped prompt")
	}
	if !strings.HasPrefix(wrapped, promptPreamble) {
		t.Fatalf("preamble missing from wrapped prompt")
	}
	if !strings.HasSuffix(wrapped, responseCue) {
		t.Fatalf("response cue missing from wrapped prompt")
	}
}

func TestWrapPromptOmitsMarkerForBenignInput(t *testing.T) {
	p := newTestPipeline()
	wrapped := p.WrapPrompt("what's a good meeting point for our group walk")
	if strings.Contains(wrapped, emergencyMarker) {
		t.Fatalf("unexpected emergency marker:\n%s", wrapped)
	}
}

func TestPostProcessInjectsEmergencySentence(t *testing.T) {
	p := newTestPipeline()
	out, ann := p.PostProcess("Apply firm pressure to the wound.", "I am bleeding and trapped, help")
	if !strings.Contains(out, EmergencyNumber) {
		t.Fatalf("output lacks emergency number: %q", out)
	}
	if !ann.EmergencyInjected {
		t.Fatalf("annotation missing emergency injection")
	}
	if !strings.HasPrefix(out, emergencySentence) {
		t.Fatalf("emergency sentence not prepended: %q", out)
	}
}

func TestPostProcessEmergencyInjectionIsIdempotent(t *testing.T) {
	p := newTestPipeline()
	out1, _ := p.PostProcess("Apply firm pressure to the wound.", "help, bleeding")
	out2, ann2 := p.PostProcess(out1, "help, bleeding")
	if ann2.EmergencyInjected {
		t.Fatalf("second pass re-injected the emergency sentence")
	}
	if strings.Count(out2, emergencySentence) != 1 {
		t.Fatalf("emergency sentence duplicated: %q", out2)
	}
}

func TestPostProcessSkipsInjectionWhenNumberPresent(t *testing.T) {
	p := newTestPipeline()
	out, ann := p.PostProcess("Call 911 right away and stay on the line.", "help, bleeding")
	if ann.EmergencyInjected {
		t.Fatalf("injected despite output already referencing %s", EmergencyNumber)
	}
	if !strings.HasPrefix(out, "Call 911") {
		t.Fatalf("output altered unexpectedly: %q", out)
	}
}

func TestPostProcessAppendsMeshSuggestion(t *testing.T) {
	p := newTestPipeline()
	out, ann := p.PostProcess("Stay calm and move to an open area.", "is it safe outside")
	if !ann.MeshInjected {
		t.Fatalf("expected mesh suggestion injection")
	}
	if !strings.Contains(out, "mesh network") {
		t.Fatalf("mesh suggestion missing: %q", out)
	}
}

func TestPostProcessSkipsMeshWhenMentioned(t *testing.T) {
	p := newTestPipeline()
	out, ann := p.PostProcess("Ask the community over the mesh for help nearby.", "is it safe outside")
	if ann.MeshInjected {
		t.Fatalf("mesh suggestion injected despite mention")
	}
	if strings.Contains(out, meshSuggestion) {
		t.Fatalf("fixed suggestion appended despite mention: %q", out)
	}
}

func TestPostProcessMeshSuggestionIncludesPeers(t *testing.T) {
	p := NewPipeline(NewClassifier(nil), func() (bool, int) { return true, 4 })
	out, _ := p.PostProcess("Stay calm.", "is it safe outside")
	if !strings.Contains(out, "4 peers are reachable") {
		t.Fatalf("peer count missing: %q", out)
	}
}

func TestPostProcessFormatsLargePeerCounts(t *testing.T) {
	p := NewPipeline(NewClassifier(nil), func() (bool, int) { return true, 123456789 })
	out, _ := p.PostProcess("Stay calm.", "is it safe outside")
	if !strings.Contains(out, "123456789 peers are reachable") {
		t.Fatalf("peer count mangled: %q", out)
	}
}

func TestPostProcessTruncatesAndKeepsInjections(t *testing.T) {
	p := newTestPipeline()
	long := strings.Repeat("stay low and follow the exit signs. ", 40) // ~1440 chars
	out, ann := p.PostProcess(long, "help, there is a fire")
	if !ann.Truncated {
		t.Fatalf("expected truncation")
	}
	if n := len([]rune(out)); n > truncateTo+len(ellipsis) {
		t.Fatalf("output too long after truncation: %d runes", n)
	}
	if !strings.Contains(out, emergencySentence) {
		t.Fatalf("truncation removed the emergency sentence")
	}
	if !strings.Contains(out, meshSuggestion) {
		t.Fatalf("truncation removed the mesh suggestion")
	}
	if !strings.Contains(out, ellipsis) {
		t.Fatalf("ellipsis marker missing: %q", out)
	}
}

func TestPostProcessShortOutputNotTruncated(t *testing.T) {
	p := newTestPipeline()
	out, ann := p.PostProcess("Head to the nearest open space.", "is it safe outside")
	if ann.Truncated {
		t.Fatalf("unexpected truncation of short output: %q", out)
	}
}

func TestFallbackPostProcessedForEmergency(t *testing.T) {
	p := newTestPipeline()
	out, ann := p.PostProcess(p.Fallback(), "I am bleeding and trapped, help")
	if !ann.EmergencyInjected {
		t.Fatalf("fallback path must still inject the emergency sentence")
	}
	if !strings.Contains(out, EmergencyNumber) {
		t.Fatalf("fallback output lacks emergency number: %q", out)
	}
}
