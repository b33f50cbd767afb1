// Package safety implements the deterministic compliance pipeline wrapped
// around every generation: prompt construction with emergency tagging, and
// ordered post-processing of model output (emergency-priority injection,
// mesh-network suggestion, display-length capping).
package safety

import (
	"strconv"
	"strings"
)

// EmergencyNumber is the emergency dial string referenced by the
// compliance rules. The UI layer owns the actual dial affordance.
const EmergencyNumber = "911"

const (
	// MaxDisplayLen is the longest response the UI will render.
	MaxDisplayLen = 800
	// truncateTo is the visible budget once truncation kicks in.
	truncateTo = 750
	ellipsis   = "..."

	emergencyMarker = "[EMERGENCY]"
)

const (
	promptPreamble = "You are SafeGuardian, a calm and practical personal safety assistant. " +
		"Give short, concrete guidance. Never invent phone numbers or addresses. " +
		"For life-threatening situations always direct the user to call " + EmergencyNumber + " first."

	responseCue = "Response:"

	// emergencySentence is the fixed priority sentence injected when model
	// output fails to reference the emergency number.
	emergencySentence = "If this is a life-threatening emergency, call " + EmergencyNumber + " immediately."

	// meshSuggestion is the fixed community-coordination suggestion.
	meshSuggestion = "You can also alert nearby community members through the SafeGuardian mesh network."
)

// Annotation records which post-processing steps fired. Derived per call,
// never persisted.
type Annotation struct {
	EmergencyInjected bool
	MeshInjected      bool
	Truncated         bool
}

// MeshStatusFunc reports mesh connectivity for enriching the mesh
// suggestion. May be nil.
type MeshStatusFunc func() (connected bool, peers int)

// Pipeline enforces the domain compliance rules on prompts and responses.
type Pipeline struct {
	classifier *Classifier
	meshStatus MeshStatusFunc
}

// NewPipeline builds a compliance pipeline over the given classifier.
// meshStatus may be nil, in which case the mesh suggestion is injected
// without peer information.
func NewPipeline(classifier *Classifier, meshStatus MeshStatusFunc) *Pipeline {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &Pipeline{classifier: classifier, meshStatus: meshStatus}
}

// Classifier exposes the pipeline's classifier so callers tag inputs with
// the same vocabulary the pipeline uses.
func (p *Pipeline) Classifier() *Classifier { return p.classifier }

// WrapPrompt builds the system-wrapped prompt handed to the runtime:
// fixed preamble, an emergency marker when the classifier tags the input,
// the raw user text, and a response cue.
func (p *Pipeline) WrapPrompt(userText string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\n")
	if p.classifier.Classify(userText).Emergency {
		b.WriteString(emergencyMarker)
		b.WriteString(" ")
	}
	b.WriteString("User: ")
	b.WriteString(strings.TrimSpace(userText))
	b.WriteString("\n")
	b.WriteString(responseCue)
	return b.String()
}

// PostProcess applies the ordered compliance transformation to generated
// text. Steps, in fixed order:
//
//  1. emergency-tagged input whose output lacks the emergency number gets
//     the priority sentence prepended (idempotent);
//  2. output that never mentions the mesh/community concept gets the mesh
//     suggestion appended;
//  3. output longer than MaxDisplayLen runes is reduced to the truncation
//     budget, cutting only the generated middle so injected safety text
//     survives.
func (p *Pipeline) PostProcess(generated, originalUserText string) (string, Annotation) {
	var ann Annotation
	core := strings.TrimSpace(generated)

	// Step 1: emergency priority.
	prefix := ""
	if p.classifier.Classify(originalUserText).Emergency && !strings.Contains(core, EmergencyNumber) {
		prefix = emergencySentence + " "
		ann.EmergencyInjected = true
	}

	// Step 2: mesh suggestion.
	suffix := ""
	if !mentionsMesh(core) {
		suffix = " " + p.meshSuggestionText()
		ann.MeshInjected = true
	}

	// Step 3: length cap, always last. The generated middle is what gets
	// cut; prefix and suffix from the earlier steps are kept whole.
	out := prefix + core + suffix
	if len([]rune(out)) > MaxDisplayLen {
		ann.Truncated = true
		budget := truncateTo - len([]rune(prefix)) - len([]rune(suffix))
		if budget < 0 {
			budget = 0
		}
		runes := []rune(core)
		if len(runes) > budget {
			runes = runes[:budget]
		}
		out = prefix + string(runes) + ellipsis + suffix
	}
	countAnnotation(ann)
	return out, ann
}

// Fallback returns the safe response used when generation fails outright.
// It is routed through PostProcess by the caller, so the emergency
// injection still fires for emergency-tagged input.
func (p *Pipeline) Fallback() string {
	return "I could not generate a full answer right now. " +
		"Stay where you are safe, conserve your phone battery, and try again shortly."
}

func (p *Pipeline) meshSuggestionText() string {
	if p.meshStatus != nil {
		if connected, peers := p.meshStatus(); connected && peers > 0 {
			return meshSuggestion + " " + peersPhrase(peers)
		}
	}
	return meshSuggestion
}

func peersPhrase(n int) string {
	if n == 1 {
		return "1 peer is reachable right now."
	}
	return strconv.Itoa(n) + " peers are reachable right now."
}

// mentionsMesh reports whether text already covers the community
// coordination concept.
func mentionsMesh(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "mesh") || strings.Contains(lower, "community")
}
