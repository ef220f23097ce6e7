package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("expected default schema version, got %d", cfg.SchemaVersion)
	}
	if len(cfg.Agents) == 0 {
		t.Fatal("expected default agents list")
	}
}

func TestLegacyMigration(t *testing.T) {
	doc := `
commandPresets:
  - name: claude
    command: claude
    args: ["--foo"]
webAuthToken: legacy-secret
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AccessToken != "legacy-secret" {
		t.Fatalf("expected webAuthToken migrated to accessToken, got %q", cfg.AccessToken)
	}
	if cfg.WebAuthToken != "" {
		t.Fatal("expected webAuthToken cleared after migration")
	}
	found := false
	for _, a := range cfg.Agents {
		if a.ID == "claude" && a.Command == "claude" && len(a.BaseArgs) == 1 && a.BaseArgs[0] == "--foo" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected commandPresets migrated into agents, got %+v", cfg.Agents)
	}
	if len(cfg.CommandPresets) != 0 {
		t.Fatal("expected commandPresets cleared after migration")
	}

	// Round-trip: save then reload should not reintroduce legacy fields.
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "commandPresets") || strings.Contains(string(data), "webAuthToken") {
		t.Fatalf("expected legacy fields absent from saved document:\n%s", data)
	}
}
