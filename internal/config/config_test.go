package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsAllSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
  requestTimeout: 3s
redis:
  addr: localhost:6379
  db: 2
postgres:
  url: postgres://quiz@localhost/quiz
quiz:
  questionCount: 5
  cacheTTL: 1m
leaderboard:
  cacheTTL: 0s
  size: 20
auth:
  jwtSecret: s3cret
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.RequestTimeout != "3s" {
		t.Fatalf("unexpected server section: %+v", cfg.Server)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Fatalf("unexpected redis section: %+v", cfg.Redis)
	}
	if cfg.Postgres.URL == "" {
		t.Fatalf("expected postgres url")
	}
	if cfg.Quiz.QuestionCount != 5 || cfg.Leaderboard.Size != 20 {
		t.Fatalf("unexpected sizes: quiz=%d leaderboard=%d", cfg.Quiz.QuestionCount, cfg.Leaderboard.Size)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected auth/log: %+v %+v", cfg.Auth, cfg.Log)
	}
	if got := TTLDuration(cfg.Leaderboard.CacheTTL, time.Second); got != 0 {
		t.Fatalf("expected explicit zero ttl, got %v", got)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Postgres.URL != "" || cfg.Redis.Addr != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestTTLDuration(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"2m", 2 * time.Minute},
		{"garbage", 5 * time.Second},
		{"-1s", 5 * time.Second},
		{"0", 0},
	}
	for _, tc := range cases {
		if got := TTLDuration(tc.raw, 5*time.Second); got != tc.want {
			t.Errorf("TTLDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
