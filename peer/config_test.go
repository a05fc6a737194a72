package peer

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peer.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
id: 2
listen: 0.0.0.0:5002
next: 127.0.0.1:5003
auto: false
score_limit: 50
token_delay_ms: 10
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ID != 2 || cfg.Listen != "0.0.0.0:5002" || cfg.Next != "127.0.0.1:5003" {
		t.Errorf("topology fields wrong: %+v", cfg)
	}
	if cfg.Auto || cfg.ScoreLimit != 50 || cfg.TokenDelayMS != 10 {
		t.Errorf("option fields wrong: %+v", cfg)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
id: 1
listen: 0.0.0.0:5001
next: 127.0.0.1:5002
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Auto {
		t.Error("auto should default to true")
	}
	if cfg.ScoreLimit != 100 {
		t.Errorf("score_limit default = %d, want 100", cfg.ScoreLimit)
	}
	if cfg.TokenDelayMS != 50 {
		t.Errorf("token_delay_ms default = %d, want 50", cfg.TokenDelayMS)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []string{
		"id: 4\nlisten: a:1\nnext: b:2\n",
		"id: -1\nlisten: a:1\nnext: b:2\n",
		"id: 0\nnext: b:2\n",
		"id: 0\nlisten: a:1\n",
		"id: 0\nlisten: a:1\nnext: b:2\nscore_limit: 0\n",
	}
	for _, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("config %q accepted, want error", body)
		}
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file accepted")
	}
}
