package assistant

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"safeguardd/internal/infer"
	"safeguardd/internal/mesh"
	"safeguardd/internal/safety"
	"safeguardd/internal/session"
)

func newTestAssistant(t *testing.T, backend *infer.ScriptBackend, loaded bool, transport mesh.Transport) *Assistant {
	t.Helper()
	rt := infer.NewRuntime(backend)
	if loaded {
		p := filepath.Join(t.TempDir(), "guardian.gguf")
		if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
		if err := rt.Load(p); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	var meshStatus safety.MeshStatusFunc
	if transport != nil {
		meshStatus = func() (bool, int) { return transport.Connected(), transport.PeerCount() }
	}
	pipe := safety.NewPipeline(safety.NewClassifier(nil), meshStatus)
	return New(Config{
		Pipeline:   pipe,
		Controller: session.New(rt),
		Runtime:    rt,
		Transport:  transport,
	})
}

func TestRespondRunsFullPipeline(t *testing.T) {
	a := newTestAssistant(t, &infer.ScriptBackend{Tokens: []string{"Move", " to", " safety", "."}}, true, nil)
	var frags []string
	reply, err := a.Respond(context.Background(), "I am bleeding and trapped, help", func(f string, final bool) bool {
		if !final {
			frags = append(frags, f)
		}
		return true
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !reply.Emergency {
		t.Fatalf("classifier missed the emergency")
	}
	if !strings.Contains(reply.Text, safety.EmergencyNumber) {
		t.Fatalf("post-processing missed emergency injection: %q", reply.Text)
	}
	if !reply.Annotation.EmergencyInjected {
		t.Fatalf("annotation=%+v", reply.Annotation)
	}
	if len(frags) != 4 {
		t.Fatalf("fragments=%v", frags)
	}
	if reply.SessionID == "" || reply.Tokens != 4 {
		t.Fatalf("reply=%+v", reply)
	}
}

func TestRespondRejectsEmptyPrompt(t *testing.T) {
	a := newTestAssistant(t, &infer.ScriptBackend{}, true, nil)
	if _, err := a.Respond(context.Background(), "   ", nil); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRespondRejectsOversizedPrompt(t *testing.T) {
	a := newTestAssistant(t, &infer.ScriptBackend{}, true, nil)
	big := strings.Repeat("x", MaxPromptBytes+1)
	if _, err := a.Respond(context.Background(), big, nil); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRespondFallsBackWhenNotLoaded(t *testing.T) {
	a := newTestAssistant(t, &infer.ScriptBackend{}, false, nil)
	reply, err := a.Respond(context.Background(), "help, I am bleeding", nil)
	if err != nil {
		t.Fatalf("fallback path must not error: %v", err)
	}
	if !reply.Fallback {
		t.Fatalf("expected fallback reply: %+v", reply)
	}
	if !strings.Contains(reply.Text, safety.EmergencyNumber) {
		t.Fatalf("fallback lacks emergency injection: %q", reply.Text)
	}
	if reply.Reason == "" {
		t.Fatalf("fallback reason missing")
	}
}

func TestRespondFallbackOnGenerateError(t *testing.T) {
	a := newTestAssistant(t, &infer.ScriptBackend{GenerateErr: infer.ErrBackendUnavailable("no backend")}, true, nil)
	reply, err := a.Respond(context.Background(), "is the bridge safe", nil)
	if err != nil {
		t.Fatalf("fallback path must not error: %v", err)
	}
	if !reply.Fallback || reply.Emergency {
		t.Fatalf("reply=%+v", reply)
	}
	// Benign input: no emergency sentence, but the mesh suggestion still
	// applies to the fallback text.
	if !reply.Annotation.MeshInjected {
		t.Fatalf("annotation=%+v", reply.Annotation)
	}
}

func TestMemoryPressureUnloadThenFallback(t *testing.T) {
	a := newTestAssistant(t, &infer.ScriptBackend{Tokens: []string{"ok"}}, true, nil)
	if reply, err := a.Respond(context.Background(), "status check please", nil); err != nil || reply.Fallback {
		t.Fatalf("warmup respond: reply=%+v err=%v", reply, err)
	}
	a.OnMemoryPressure()
	if a.ModelLoaded() {
		t.Fatalf("model still loaded after memory pressure")
	}
	reply, err := a.Respond(context.Background(), "status check please", nil)
	if err != nil {
		t.Fatalf("respond after unload: %v", err)
	}
	if !reply.Fallback {
		t.Fatalf("expected fallback after unload: %+v", reply)
	}
}

func TestShareToMesh(t *testing.T) {
	lb := mesh.NewLoopback()
	a := newTestAssistant(t, &infer.ScriptBackend{}, false, lb)
	if err := a.ShareToMesh("anyone near the river?"); !IsMeshUnavailable(err) {
		t.Fatalf("expected mesh unavailable while disconnected, got %v", err)
	}
	lb.SetPeers(2)
	if err := a.ShareToMesh("anyone near the river?"); err != nil {
		t.Fatalf("share: %v", err)
	}
	if got := lb.Sent(); len(got) != 1 {
		t.Fatalf("sent=%v", got)
	}
	if connected, peers := a.MeshStatus(); !connected || peers != 2 {
		t.Fatalf("mesh status connected=%v peers=%d", connected, peers)
	}
}

func TestMeshPeersSurfaceInsideSuggestion(t *testing.T) {
	lb := mesh.NewLoopback()
	lb.SetPeers(5)
	a := newTestAssistant(t, &infer.ScriptBackend{Tokens: []string{"Stay put."}}, true, lb)
	reply, err := a.Respond(context.Background(), "should I move", nil)
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if !strings.Contains(reply.Text, "5 peers are reachable") {
		t.Fatalf("peer-aware suggestion missing: %q", reply.Text)
	}
}
