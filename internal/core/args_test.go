package core

import (
	"os"
	"path/filepath"
	"testing"
)

func setupTestFiles(t *testing.T, files map[string]string) []string {
	t.Helper()
	tmpDir := t.TempDir()
	var paths []string

	for filename, content := range files {
		filePath := filepath.Join(tmpDir, filename)
		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create test file %s: %v", filename, err)
		}
		paths = append(paths, filePath)
	}

	return paths
}

func assertValidationError(t *testing.T, err error, expectedArg string) {
	t.Helper()
	validationErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	if expectedArg != "" && validationErr.Arg != expectedArg {
		t.Errorf("expected Arg to be %q, got %q", expectedArg, validationErr.Arg)
	}
}

func TestParseArgs(t *testing.T) {
	t.Run("empty args returns error", func(t *testing.T) {
		result, err := ParseArgs([]string{})

		if err == nil {
			t.Fatal("expected error for empty args")
		}
		if result != nil {
			t.Error("expected nil result for empty args")
		}
		assertValidationError(t, err, "<files>")
	})

	t.Run("single file", func(t *testing.T) {
		paths := setupTestFiles(t, map[string]string{"report.pdf": "pdf content"})

		files, err := ParseArgs(paths)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("expected 1 file, got %d", len(files))
		}
		if files[0].Name != "report.pdf" {
			t.Errorf("expected name report.pdf, got %s", files[0].Name)
		}
		if files[0].Size != int64(len("pdf content")) {
			t.Errorf("expected size %d, got %d", len("pdf content"), files[0].Size)
		}
		if files[0].ContentType != "application/pdf" {
			t.Errorf("expected application/pdf, got %s", files[0].ContentType)
		}
	})

	t.Run("unknown extension falls back to octet-stream", func(t *testing.T) {
		paths := setupTestFiles(t, map[string]string{"data.weird-ext": "x"})

		files, err := ParseArgs(paths)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if files[0].ContentType != "application/octet-stream" {
			t.Errorf("expected application/octet-stream, got %s", files[0].ContentType)
		}
	})

	t.Run("multiple files preserve order", func(t *testing.T) {
		tmpDir := t.TempDir()
		var paths []string
		for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
			p := filepath.Join(tmpDir, name)
			if err := os.WriteFile(p, []byte("content"), 0644); err != nil {
				t.Fatal(err)
			}
			paths = append(paths, p)
		}

		files, err := ParseArgs(paths)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(files) != 3 {
			t.Fatalf("expected 3 files, got %d", len(files))
		}
		for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
			if files[i].Name != name {
				t.Errorf("position %d: expected %s, got %s", i, name, files[i].Name)
			}
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		_, err := ParseArgs([]string{"/no/such/file.txt"})
		if err == nil {
			t.Fatal("expected error for missing file")
		}
		assertValidationError(t, err, "/no/such/file.txt")
	})

	t.Run("directory is rejected", func(t *testing.T) {
		dir := t.TempDir()

		_, err := ParseArgs([]string{dir})
		if err == nil {
			t.Fatal("expected error for directory argument")
		}
		assertValidationError(t, err, dir)
	})

	t.Run("empty file is rejected", func(t *testing.T) {
		paths := setupTestFiles(t, map[string]string{"empty.txt": ""})

		_, err := ParseArgs(paths)
		if err == nil {
			t.Fatal("expected error for empty file")
		}
	})
}
