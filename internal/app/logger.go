package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// OpenLogger opens the debug log file under the config directory and
// returns a standard logger writing to it. The log is for supervisor
// diagnostics only; nothing is ever written to the operator terminal
// through it.
func OpenLogger(configDir string) (*log.Logger, io.Closer, error) {
	dir := LogDir(configDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "unleashed.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), f, nil
}
