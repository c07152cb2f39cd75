//go:build js && wasm

// Command scanner-wasm wires the scanner page's upload form. `go generate`
// (or `make wasm`) from the module root builds it into static/ next to the
// Go runtime shim.
package main

import (
	"syscall/js"

	"go.uber.org/zap"

	"github.com/example/leafscan/internal/uploadui"
)

func main() {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync() //nolint:errcheck

	binding, err := uploadui.Bind(js.Global(), logger)
	if err != nil {
		js.Global().Get("console").Call("error", err.Error())
		return
	}
	defer binding.Release()

	logger.Info("upload controller ready")
	select {}
}
