package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMissingScannerAssets(t *testing.T) {
	dir := t.TempDir()

	if got := missingScannerAssets(dir); !reflect.DeepEqual(got, []string{"scanner.wasm", "wasm_exec.js"}) {
		t.Fatalf("expected both assets missing, got %v", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "scanner.wasm"), []byte("\x00asm"), 0o644); err != nil {
		t.Fatalf("write wasm: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "wasm_exec.js"), nil, 0o644); err != nil {
		t.Fatalf("write shim: %v", err)
	}
	if got := missingScannerAssets(dir); !reflect.DeepEqual(got, []string{"wasm_exec.js"}) {
		t.Fatalf("expected only the empty shim reported, got %v", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "wasm_exec.js"), []byte("// shim"), 0o644); err != nil {
		t.Fatalf("write shim: %v", err)
	}
	if got := missingScannerAssets(dir); len(got) != 0 {
		t.Fatalf("expected no missing assets, got %v", got)
	}
}

func TestUploadURLPrefix(t *testing.T) {
	root := t.TempDir()
	static := filepath.Join(root, "static")

	cases := []struct {
		upload string
		want   string
		ok     bool
	}{
		{filepath.Join(static, "uploads"), "/static/uploads", true},
		{filepath.Join(static, "media", "scans"), "/static/media/scans", true},
		{static, "", false},
		{filepath.Join(root, "uploads"), "", false},
		{filepath.Join(root, "static-uploads"), "", false},
	}
	for _, tc := range cases {
		got, err := uploadURLPrefix(static, tc.upload)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%s: expected %q, got %q (%v)", tc.upload, tc.want, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected an error, got %q", tc.upload, got)
		}
	}
}
