package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")
	t.Setenv("SEARCH_TOP_K", "")
	t.Setenv("NATS_STREAM", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 1200 {
		t.Fatalf("expected default chunk size 1200, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap != 150 {
		t.Fatalf("expected default chunk overlap 150, got %d", cfg.ChunkOverlap)
	}
	if cfg.SearchTopK != 10 {
		t.Fatalf("expected default top k 10, got %d", cfg.SearchTopK)
	}
	if cfg.NATSStream != "DOCVAULT_INGEST" {
		t.Fatalf("expected default stream, got %q", cfg.NATSStream)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("chunk_size: 800\nsearch_top_k: 25\nnats:\n  subject: docs.custom\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("CHUNK_SIZE", "1500")
	t.Setenv("SEARCH_TOP_K", "")
	t.Setenv("NATS_SUBJECT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 1500 {
		t.Fatalf("expected env override 1500, got %d", cfg.ChunkSize)
	}
	if cfg.SearchTopK != 25 {
		t.Fatalf("expected file value 25, got %d", cfg.SearchTopK)
	}
	if cfg.NATSSubject != "docs.custom" {
		t.Fatalf("expected file subject, got %q", cfg.NATSSubject)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: [broken"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}
