package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

//go:generate sh -c "GOOS=js GOARCH=wasm go build -o static/scanner.wasm ./cmd/scanner-wasm"
//go:generate sh -c "cp \"$(go env GOROOT)/lib/wasm/wasm_exec.js\" static/ 2>/dev/null || cp \"$(go env GOROOT)/misc/wasm/wasm_exec.js\" static/"

// scannerAssets are loaded by the scanner page to wire its upload form.
// Without them the drop zone is inert and the file input stays hidden.
var scannerAssets = []string{"scanner.wasm", "wasm_exec.js"}

// missingScannerAssets lists the scanner assets absent from staticDir.
func missingScannerAssets(staticDir string) []string {
	var missing []string
	for _, name := range scannerAssets {
		info, err := os.Stat(filepath.Join(staticDir, name))
		if err != nil || info.IsDir() || info.Size() == 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

// uploadURLPrefix maps uploadDir to the URL it is served under. Uploads are
// served by the /static route, so uploadDir must live inside staticDir.
func uploadURLPrefix(staticDir, uploadDir string) (string, error) {
	staticAbs, err := filepath.Abs(staticDir)
	if err != nil {
		return "", err
	}
	uploadAbs, err := filepath.Abs(uploadDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(staticAbs, uploadAbs)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("UPLOAD_DIR %q must be a subdirectory of the static directory %q", uploadDir, staticDir)
	}
	return path.Join("/static", filepath.ToSlash(rel)), nil
}
