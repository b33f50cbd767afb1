// Package blackbox exercises the daemon end to end through its HTTP
// surface: acquire the artifact from a fake origin, generate with the
// script backend, classify, and delete.
package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"safeguardd/internal/acquire"
	"safeguardd/internal/app"
	"safeguardd/internal/assistant"
	"safeguardd/internal/httpapi"
	"safeguardd/internal/infer"
	"safeguardd/internal/mesh"
	"safeguardd/internal/safety"
	"safeguardd/internal/session"
	"safeguardd/pkg/types"
)

const artifactBytes = 2048

// startStack spins up a fake artifact origin plus the full daemon stack
// over httptest. Nothing is on disk yet; tests drive the download.
func startStack(t *testing.T) (base string, modelPath string) {
	t.Helper()
	payload := bytes.Repeat([]byte("w"), artifactBytes)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(origin.Close)

	dir := t.TempDir()
	modelPath = filepath.Join(dir, "guard-3b.gguf")
	asset := types.ModelAsset{
		Name:          "guard-3b",
		URL:           origin.URL,
		ExpectedBytes: artifactBytes,
		Path:          modelPath,
	}
	manager := acquire.NewManager(asset)
	rt := infer.NewRuntime(&infer.ScriptBackend{})
	ctrl := session.New(rt)
	loop := mesh.NewLoopback()
	pipe := safety.NewPipeline(safety.NewClassifier(nil), func() (bool, int) {
		return loop.Connected(), loop.PeerCount()
	})
	asst := assistant.New(assistant.Config{
		Pipeline:   pipe,
		Controller: ctrl,
		Runtime:    rt,
		Transport:  loop,
	})
	core := app.NewCore(manager, rt, asst)

	srv := httptest.NewServer(httpapi.NewMux(core))
	t.Cleanup(srv.Close)
	return srv.URL, modelPath
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func del(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	_ = resp.Body.Close()
	return resp
}

func waitPhase(t *testing.T, base string, phase types.DownloadPhase, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		_, body := get(t, base+"/model")
		var mr types.ModelResponse
		if err := json.Unmarshal(body, &mr); err != nil {
			t.Fatalf("/model json: %v body=%s", err, string(body))
		}
		if mr.State.Phase == phase {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("phase never reached %s; last=%s reason=%q", phase, mr.State.Phase, mr.State.Reason)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestBlackbox_Flow(t *testing.T) {
	base, modelPath := startStack(t)

	// /healthz always up
	resp, body := get(t, base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	// Not ready before the artifact exists.
	resp, _ = get(t, base+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz before download: %d", resp.StatusCode)
	}

	// Kick the download and wait for ready.
	resp, _ = postJSON(t, base+"/model/download", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("/model/download %d", resp.StatusCode)
	}
	waitPhase(t, base, types.DownloadReady, 5*time.Second)
	if fi, err := os.Stat(modelPath); err != nil || fi.Size() != artifactBytes {
		t.Fatalf("artifact on disk: %v", err)
	}

	resp, _ = get(t, base+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz after download: %d", resp.StatusCode)
	}

	// Generate over the script backend, streamed.
	resp, body = postJSON(t, base+"/generate", []byte(`{"prompt":"where should I go?","stream":true}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/generate %d %s", resp.StatusCode, string(body))
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected streamed NDJSON, got %q", string(body))
	}
	var final types.GenerateResult
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &final); err != nil {
		t.Fatalf("final line json: %v", err)
	}
	if !final.Done || final.Fallback {
		t.Fatalf("unexpected final line: %+v", final)
	}
	if !strings.Contains(final.Text, "Stay calm") {
		t.Fatalf("text: %q", final.Text)
	}
	if final.SessionID == "" {
		t.Fatal("missing session id")
	}

	// /classify
	resp, body = postJSON(t, base+"/classify", []byte(`{"text":"there is a fire, help"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/classify %d %s", resp.StatusCode, string(body))
	}
	var verdict types.ClassifyResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		t.Fatalf("/classify json: %v", err)
	}
	if !verdict.Emergency || len(verdict.Matches) != 2 {
		t.Fatalf("verdict: %+v", verdict)
	}

	// /status reflects the work done.
	resp, body = get(t, base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d", resp.StatusCode)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v", err)
	}
	if !st.ModelLoaded || st.GenerationsTotal != 1 || st.FallbacksTotal != 0 {
		t.Fatalf("status: %+v", st)
	}

	// Delete resets everything.
	if resp := del(t, base+"/model"); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete %d", resp.StatusCode)
	}
	if _, err := os.Stat(modelPath); !os.IsNotExist(err) {
		t.Fatalf("artifact still present: %v", err)
	}
	waitPhase(t, base, types.DownloadNotStarted, time.Second)
}

func TestBlackbox_EmergencyFallbackWithoutModel(t *testing.T) {
	base, _ := startStack(t)

	// No download: generation must still answer, via the fallback, and the
	// emergency injection must fire for emergency input.
	resp, body := postJSON(t, base+"/generate", []byte(`{"prompt":"I am trapped and bleeding"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/generate %d %s", resp.StatusCode, string(body))
	}
	var final types.GenerateResult
	if err := json.Unmarshal(bytes.TrimSpace(body), &final); err != nil {
		t.Fatalf("json: %v body=%s", err, string(body))
	}
	if !final.Fallback || !final.Emergency {
		t.Fatalf("final: %+v", final)
	}
	if !strings.Contains(final.Text, safety.EmergencyNumber) {
		t.Fatalf("fallback text must carry the emergency number: %q", final.Text)
	}
}

func TestBlackbox_BadRequests(t *testing.T) {
	base, _ := startStack(t)

	resp, _ := postJSON(t, base+"/generate", []byte(`{"prompt":"  "}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank prompt: %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, base+"/classify", []byte(`not-json`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json: %d", resp.StatusCode)
	}
}
