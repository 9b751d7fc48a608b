package fsresource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestServer_ListsFilesExcludingPatterns(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "readme.txt"), "hello")
	mustWriteFile(t, filepath.Join(dir, "secret", "key.pem"), "shh")

	resources, _, err := Server(dir, "secret")
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}

	if len(resources) != 1 {
		t.Fatalf("Server() resources = %+v, want 1 (secret excluded)", resources)
	}
	if resources[0].Name != "readme.txt" {
		t.Errorf("resources[0].Name = %q, want readme.txt", resources[0].Name)
	}
	if resources[0].URI != "file:///readme.txt" {
		t.Errorf("resources[0].URI = %q, want file:///readme.txt", resources[0].URI)
	}
}

func TestServer_ReadHandlerReturnsTextForUTF8(t *testing.T) {
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.txt"), "plain text")

	resources, read, err := Server(dir)
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}
	result, err := read(context.Background(), resources[0].URI)
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Text != "plain text" {
		t.Errorf("result = %+v, want text content", result)
	}
	if result.Contents[0].Blob != "" {
		t.Errorf("result.Blob = %q, want empty for UTF-8 content", result.Contents[0].Blob)
	}
}

func TestServer_ReadHandlerReturnsBlobForBinary(t *testing.T) {
	dir := t.TempDir()
	binary := []byte{0xff, 0xfe, 0x00, 0x01, 0x02}
	if err := os.WriteFile(filepath.Join(dir, "bin.dat"), binary, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	resources, read, err := Server(dir)
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}
	result, err := read(context.Background(), resources[0].URI)
	if err != nil {
		t.Fatalf("read() error = %v", err)
	}
	if result.Contents[0].Blob == "" {
		t.Error("result.Blob is empty, want base64-encoded binary content")
	}
	if result.Contents[0].Text != "" {
		t.Errorf("result.Text = %q, want empty for binary content", result.Contents[0].Text)
	}
}

func TestServer_ReadHandlerUnknownURI(t *testing.T) {
	dir := t.TempDir()
	_, read, err := Server(dir)
	if err != nil {
		t.Fatalf("Server() error = %v", err)
	}
	if _, err := read(context.Background(), "file:///does-not-exist"); err == nil {
		t.Error("read() on unknown URI = nil error, want an error")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
