// Package e2e provides end-to-end tests for the complete docforge flow over a
// real HTTP listener.
package e2e

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/docforge/bootstrap"
	"github.com/prometheus/client_golang/prometheus"
)

const configYAML = `
logging:
  level: error
active: release
bundles:
  - name: release
    schema: schemas/release.yaml
    template: templates/release.json
results:
  enabled: true
  dsn: data/ledger.db
metrics:
  enabled: true
`

const releaseSchema = `
type: object
required: [version, changes]
properties:
  version:
    type: string
  changes:
    type: array
    items:
      type: string
    x-derived-unique: true
  owner:
    $ref: "#/definitions/Person"
definitions:
  Person:
    type: object
    properties:
      name:
        type: string
`

const releaseTemplate = `{"release": "{version}", "changes": "{changes}"}`

// TestE2E_RenderFlow covers:
// 1. Start docforge with a YAML config and one bundle
// 2. Render a document over HTTP
// 3. Read the execution back from the ledger
// 4. Edit the template and wait for the hot reload
func TestE2E_RenderFlow(t *testing.T) {
	dir := setupProject(t)
	app := setupTestApp(t, dir)
	addr := startServer(t, app)
	client := &http.Client{Timeout: 5 * time.Second}

	doc := "---\nversion: 1.2.0\nchanges: [fix, feat, fix]\n---\nNotes"
	out := renderOver(t, client, addr, doc)
	var rendered struct {
		Release string   `json:"release"`
		Changes []string `json:"changes"`
	}
	if err := json.Unmarshal([]byte(out), &rendered); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, out)
	}
	if rendered.Release != "1.2.0" || strings.Join(rendered.Changes, ",") != "fix,feat" {
		t.Errorf("rendered = %+v", rendered)
	}

	resp, err := client.Get("http://" + addr + "/api/executions?status=succeeded")
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"bundle":"release"`) {
		t.Errorf("executions = %s", body)
	}

	// Hot reload: the watcher sees the template change and restages.
	writeFile(t, filepath.Join(dir, "templates/release.json"), `{"v": "{version}"}`)
	deadline := time.Now().Add(5 * time.Second)
	for {
		out = renderOver(t, client, addr, doc)
		if strings.Contains(out, `"v": "1.2.0"`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("template change not picked up, output = %s", out)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestE2E_HealthEndpoints(t *testing.T) {
	app := setupTestApp(t, setupProject(t))
	addr := startServer(t, app)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	resp, err = client.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `docforge_active_bundle{bundle="release"} 1`) {
		t.Errorf("active bundle gauge missing:\n%s", body)
	}
}

func TestE2E_ErrorsAreDocuments(t *testing.T) {
	app := setupTestApp(t, setupProject(t))
	addr := startServer(t, app)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Post("http://"+addr+"/api/render?format=json", "text/markdown", strings.NewReader("no frontmatter here"))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var doc struct {
		Errors []struct {
			Code string         `json:"code"`
			Meta map[string]any `json:"meta"`
		} `json:"errors"`
	}
	json.NewDecoder(resp.Body).Decode(&doc)
	if len(doc.Errors) != 1 || doc.Errors[0].Code != "ExtractionStrategyFailed" || doc.Errors[0].Meta["phase"] != float64(1) {
		t.Errorf("errors = %+v", doc.Errors)
	}
}

func renderOver(t *testing.T, client *http.Client, addr, doc string) string {
	t.Helper()
	resp, err := client.Post("http://"+addr+"/api/render?format=json", "text/markdown", strings.NewReader(doc))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("render status = %d: %s", resp.StatusCode, body)
	}
	var body struct {
		Data struct {
			Output string `json:"output"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Data.Output
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func setupProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "docforge.yaml"), configYAML)
	writeFile(t, filepath.Join(dir, "schemas/release.yaml"), releaseSchema)
	writeFile(t, filepath.Join(dir, "templates/release.json"), releaseTemplate)
	return dir
}

func setupTestApp(t *testing.T, dir string) *bootstrap.App {
	t.Helper()
	reg := prometheus.NewRegistry()
	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: filepath.Join(dir, "docforge.yaml"),
		LogOutput:  io.Discard,
		Registerer: reg,
		Gatherer:   reg,
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	if err := app.Config.WatchFile(); err != nil {
		t.Fatalf("watch: %v", err)
	}
	t.Cleanup(func() { app.Shutdown() })
	return app
}

func startServer(t *testing.T, app *bootstrap.App) string {
	t.Helper()

	// Find free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := listener.Addr().String()
	app.HTTPServer.Addr = addr

	// Close the listener so server can use the port
	listener.Close()

	go func() {
		if err := app.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server stopped: %v", err)
		}
	}()

	waitForServer(t, addr)
	return addr
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	client := &http.Client{Timeout: 100 * time.Millisecond}

	for i := 0; i < 50; i++ {
		resp, err := client.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server at %s did not start", addr)
}
