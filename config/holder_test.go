package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/artpar/docforge/config"
	"github.com/rs/zerolog"
)

func validConfig() string {
	return `
logging:
  level: info
bundles:
  - name: report
    schema: schemas/report.json
    template: report.md
`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	return writeFile(t, t.TempDir(), "docforge.yaml", content)
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestHolder_Get(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if got := h.Get(); got == nil || got.Active != "report" {
		t.Fatalf("Get() = %+v", got)
	}
}

func TestHolder_Reload(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	var got []string
	h.OnChange(func(cfg *config.Config) {
		got = append(got, cfg.Active)
	})

	next := validConfig() + `  - name: notes
    schema: notes.json
    template: notes.md
active: notes
`
	if err := os.WriteFile(path, []byte(next), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}
	if err := h.Reload(); err != nil {
		t.Fatalf("Reload error: %v", err)
	}

	if h.Get().Active != "notes" || len(got) != 1 || got[0] != "notes" {
		t.Errorf("Active = %q, listeners saw %v", h.Get().Active, got)
	}
	if !h.Watched(filepath.Join(filepath.Dir(path), "notes.json")) {
		t.Error("new bundle file should be watched after reload")
	}
}

func TestHolder_ReloadInvalidConfigKeepsOld(t *testing.T) {
	path := writeConfig(t, validConfig())

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	called := false
	h.OnChange(func(*config.Config) { called = true })

	if err := os.WriteFile(path, []byte("bundles:\n  - name: broken\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := h.Reload(); err == nil {
		t.Fatal("Reload should fail")
	}
	if h.Get().Active != "report" {
		t.Errorf("old config lost: %+v", h.Get())
	}
	if called {
		t.Error("listeners must not run on failed reload")
	}
}

func TestHolder_WatchesBundleFiles(t *testing.T) {
	path := writeConfig(t, validConfig())
	dir := filepath.Dir(path)
	schemaPath := writeFile(t, dir, "schemas/report.json", `{"type":"object"}`)

	h, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHolder error: %v", err)
	}
	defer h.Stop()

	if !h.Watched(path) || !h.Watched(schemaPath) {
		t.Fatal("config and schema should be watched")
	}
	if h.Watched(filepath.Join(dir, "unrelated.txt")) {
		t.Error("unrelated file should not be watched")
	}

	var (
		mu    sync.Mutex
		calls int
	)
	h.OnChange(func(*config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err := h.WatchFile(); err != nil {
		t.Fatalf("WatchFile error: %v", err)
	}

	if err := os.WriteFile(schemaPath, []byte(`{"type":"object","required":["x"]}`), 0644); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	})
	if !ok {
		t.Error("schema change did not trigger reload")
	}
}

func TestHolder_StopTwice(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	h.Stop()
	h.Stop()
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	h, err := config.NewHolder(writeConfig(t, validConfig()), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.Get()
		}()
		go func() {
			defer wg.Done()
			_ = h.Reload()
		}()
	}
	wg.Wait()
}

func TestReloadableFields(t *testing.T) {
	reloadable := make(map[string]bool)
	for _, f := range config.ReloadableFields() {
		reloadable[f] = true
	}
	for _, f := range config.NonReloadableFields() {
		if reloadable[f] {
			t.Errorf("%s listed as both reloadable and non-reloadable", f)
		}
	}
	if !reloadable["active"] || !reloadable["bundles"] {
		t.Error("active and bundles must be reloadable")
	}
}
