package llamasrv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestAvailableModels(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.gguf", "alpha.gguf", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	m := NewManager(dir)
	models, err := m.AvailableModels()
	if err != nil {
		t.Fatalf("AvailableModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("models = %d, want 2 (.gguf only)", len(models))
	}
	if models[0].Name != "alpha.gguf" || models[1].Name != "zeta.gguf" {
		t.Errorf("models not sorted by name: %v", models)
	}
	if models[0].Size != 1 {
		t.Errorf("Size = %d, want 1", models[0].Size)
	}
}

func TestAvailableModelsMissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	models, err := m.AvailableModels()
	if err != nil {
		t.Fatalf("AvailableModels: %v", err)
	}
	if len(models) != 0 {
		t.Errorf("models = %v, want empty", models)
	}
}

func TestStartUnknownModel(t *testing.T) {
	m := NewManager(t.TempDir(), WithBinary("/bin/true"), WithPort(59997))
	if _, err := m.Start(context.Background(), "missing.gguf"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	m := NewManager(t.TempDir(), WithPort(59999))
	stopped, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped {
		t.Error("Stop reported true with no managed process")
	}
}

func TestServerStatusNotRunning(t *testing.T) {
	m := NewManager(t.TempDir(), WithPort(59998))
	status := m.ServerStatus(context.Background())
	if status.Running {
		t.Error("status reports running with nothing listening")
	}
	if status.Port != 59998 {
		t.Errorf("Port = %d", status.Port)
	}
}
