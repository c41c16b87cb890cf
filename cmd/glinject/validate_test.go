package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateCommand(t *testing.T) {
	path := writeDoc(t, `
groups:
  - name: Platform
    labels:
      - id: 1
        name: bug
        color: "#FF0000"
`)

	rootCmd.SetArgs([]string{"validate", "--config", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("validate failed on a valid document: %v", err)
	}
}

func TestValidateCommandRejectsInvalidDocument(t *testing.T) {
	path := writeDoc(t, `
groups:
  - name: Platform
    labels:
      - id: 1
        name: bug
        color: "not-a-color"
`)

	rootCmd.SetArgs([]string{"validate", "--config", path})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected an error for an invalid label color")
	}
}

func TestExistingPolicy(t *testing.T) {
	if _, err := existingPolicy("reuse"); err != nil {
		t.Errorf("reuse rejected: %v", err)
	}
	if _, err := existingPolicy(""); err != nil {
		t.Errorf("empty (default) rejected: %v", err)
	}
	if _, err := existingPolicy("fail"); err != nil {
		t.Errorf("fail rejected: %v", err)
	}
	if _, err := existingPolicy("overwrite"); err == nil {
		t.Error("overwrite accepted")
	}
}
