package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestProtenixCatalog(t *testing.T) {
	c := Protenix()
	if len(c.Names()) != 7 {
		t.Fatalf("expected 7 protenix models, got %d", len(c.Names()))
	}
	if c.Default().Name != "protenix_base_default_v1.0.0" {
		t.Fatalf("default = %s", c.Default().Name)
	}
	mini, ok := c.Lookup("protenix_mini_esm_v0.5.0")
	if !ok {
		t.Fatal("mini model missing")
	}
	if mini.NStep != 5 || mini.NCycle != 4 {
		t.Fatalf("mini cost params = %d/%d", mini.NStep, mini.NCycle)
	}
	if c.Has("alphafold3") {
		t.Fatal("catalog accepted unknown model")
	}
}

func TestESMCatalog(t *testing.T) {
	c := ESM()
	if !c.Has("esmfold_v1") {
		t.Fatal("esmfold_v1 missing")
	}
	if c.Default().Name != "esmfold_v1" {
		t.Fatalf("default = %s", c.Default().Name)
	}
}

func TestListMarksLoadedModel(t *testing.T) {
	c := Protenix()
	infos := c.List("protenix_tiny_default_v0.5.0")
	loaded := 0
	for _, m := range infos {
		if m.Loaded {
			loaded++
			if m.Name != "protenix_tiny_default_v0.5.0" {
				t.Fatalf("wrong model marked loaded: %s", m.Name)
			}
		}
	}
	if loaded != 1 {
		t.Fatalf("expected exactly one loaded model, got %d", loaded)
	}
}

func TestForKind(t *testing.T) {
	if _, err := ForKind("protenix", ""); err != nil {
		t.Fatalf("protenix kind: %v", err)
	}
	if _, err := ForKind(" ESM ", ""); err != nil {
		t.Fatalf("kind should be case and space insensitive: %v", err)
	}
	if _, err := ForKind("boltz", ""); err == nil {
		t.Fatal("unknown kind must error")
	}
}

func TestLoadFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	data := `
- name: custom_v1
  description: custom model
  parameters_m: 42.0
  features: [MSA]
  speed_tier: fast
  default: true
  n_step: 10
  n_cycle: 2
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	e, ok := c.Lookup("custom_v1")
	if !ok {
		t.Fatal("custom_v1 missing after load")
	}
	if e.NStep != 10 || !e.Default {
		t.Fatalf("entry parsed wrong: %+v", e)
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(empty); err == nil {
		t.Fatal("empty catalog file must error")
	}
}

func TestDefaultFallsBackToFirst(t *testing.T) {
	c := New(
		Entry{Name: "a"},
		Entry{Name: "b"},
	)
	if c.Default().Name != "a" {
		t.Fatalf("default fallback = %s", c.Default().Name)
	}
}
