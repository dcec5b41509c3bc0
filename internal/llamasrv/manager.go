// Package llamasrv manages a local llama.cpp server subprocess.
package llamasrv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager defaults
const (
	DefaultPort     = 8080
	startupGrace    = 2 * time.Second
	probeTimeout    = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// ModelInfo describes a .gguf model file in the models directory.
type ModelInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Status reports the server's current state.
type Status struct {
	Running bool   `json:"running"`
	URL     string `json:"url"`
	Port    int    `json:"port"`
	PID     int    `json:"pid,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Manager starts and stops a llama-server process and tracks its state.
// All methods are safe for concurrent use.
type Manager struct {
	modelsDir string
	port      int
	binary    string
	client    *http.Client

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	exitErr error
}

// Option configures a Manager.
type Option func(*Manager)

// WithPort overrides the listen port.
func WithPort(port int) Option {
	return func(m *Manager) { m.port = port }
}

// WithBinary pins the llama-server binary path instead of searching for it.
func WithBinary(path string) Option {
	return func(m *Manager) { m.binary = path }
}

// NewManager creates a manager that loads models from modelsDir.
func NewManager(modelsDir string, opts ...Option) *Manager {
	m := &Manager{
		modelsDir: modelsDir,
		port:      DefaultPort,
		client:    &http.Client{Timeout: probeTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) serverURL() string {
	return "http://localhost:" + strconv.Itoa(m.port)
}

// findBinary locates llama-server in the configured path, PATH, or common
// build locations.
func (m *Manager) findBinary() (string, error) {
	if m.binary != "" {
		return m.binary, nil
	}
	for _, name := range []string{"llama-server", "llama-cpp-server"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join(home, ".local", "bin", "llama-server"),
		filepath.Join(home, "llama.cpp", "build", "bin", "llama-server"),
		filepath.Join(home, "llama.cpp", "llama-server"),
		"/usr/local/bin/llama-server",
		"/opt/llama.cpp/llama-server",
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return path, nil
		}
	}
	return "", fmt.Errorf("llama-server binary not found; ensure llama.cpp is installed and llama-server is in PATH")
}

// AvailableModels lists the .gguf files in the models directory, sorted by
// name. A missing directory yields an empty list.
func (m *Manager) AvailableModels() ([]ModelInfo, error) {
	entries, err := os.ReadDir(m.modelsDir)
	if os.IsNotExist(err) {
		return []ModelInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory %s: %w", m.modelsDir, err)
	}

	models := make([]ModelInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".gguf") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		models = append(models, ModelInfo{
			Name: entry.Name(),
			Path: filepath.Join(m.modelsDir, entry.Name()),
			Size: info.Size(),
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// managedRunning reports whether our subprocess is alive. Caller holds mu.
func (m *Manager) managedRunningLocked() bool {
	if m.cmd == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// IsRunning reports whether a llama.cpp server answers on our port, whether
// we started it or not.
func (m *Manager) IsRunning(ctx context.Context) bool {
	m.mu.Lock()
	managed := m.managedRunningLocked()
	m.mu.Unlock()
	if managed {
		return true
	}
	return m.probeHealth(ctx)
}

func (m *Manager) probeHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.serverURL()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Start launches llama-server with the named model from the models
// directory. It fails if a server is already running, the model file is
// missing, or the process dies during the startup grace period.
func (m *Manager) Start(ctx context.Context, modelName string) (*Status, error) {
	if m.IsRunning(ctx) {
		return nil, fmt.Errorf("server is already running")
	}

	modelPath := filepath.Join(m.modelsDir, filepath.Base(modelName))
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not found: %s", modelPath)
	}

	binary, err := m.findBinary()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary,
		"--model", modelPath,
		"--port", strconv.Itoa(m.port),
		"--host", "0.0.0.0",
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.cmd = cmd
	m.done = done
	m.exitErr = nil
	m.mu.Unlock()

	go func() {
		err := cmd.Wait()
		m.mu.Lock()
		m.exitErr = err
		m.mu.Unlock()
		close(done)
		if err != nil {
			slog.Warn("Manager: llama-server exited", "error", err)
		}
	}()

	select {
	case <-done:
		m.mu.Lock()
		exitErr := m.exitErr
		m.cmd = nil
		m.mu.Unlock()
		return nil, fmt.Errorf("server failed to start: %v", exitErr)
	case <-time.After(startupGrace):
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return nil, ctx.Err()
	}

	slog.Info("Manager.Start: llama-server started", "model", modelName, "pid", cmd.Process.Pid, "port", m.port)
	return &Status{
		Running: true,
		URL:     m.serverURL(),
		Port:    m.port,
		PID:     cmd.Process.Pid,
		Model:   modelName,
	}, nil
}

// Stop terminates the managed server process, escalating from SIGTERM-style
// interrupt to kill after a grace period. Stopping when nothing runs is not
// an error.
func (m *Manager) Stop(ctx context.Context) (bool, error) {
	m.mu.Lock()
	cmd := m.cmd
	done := m.done
	m.cmd = nil
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return false, nil
	}

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Warn("Manager.Stop: interrupt failed, killing", "error", err)
		_ = cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		_ = cmd.Process.Kill()
		select {
		case <-done:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return false, ctx.Err()
	}

	slog.Info("Manager.Stop: llama-server stopped")
	return true, nil
}

// ServerStatus reports whether the server runs and, when reachable, the
// loaded model from its /v1/models endpoint.
func (m *Manager) ServerStatus(ctx context.Context) Status {
	status := Status{
		URL:  m.serverURL(),
		Port: m.port,
	}

	m.mu.Lock()
	if m.managedRunningLocked() {
		status.PID = m.cmd.Process.Pid
	}
	m.mu.Unlock()

	status.Running = status.PID != 0 || m.probeHealth(ctx)
	if !status.Running {
		return status
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.serverURL()+"/v1/models", nil)
	if err != nil {
		return status
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return status
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status
	}

	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&models); err == nil && len(models.Data) > 0 {
		status.Model = models.Data[0].ID
	}
	return status
}
