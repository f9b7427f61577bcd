package main

import (
	"io"
	"os"

	"github.com/arcflow/orchestrator/logging"
)

// logOutput resolves the --log-file flag (CLI flag > default stderr); no
// environment variable is consulted.
func logOutput() (io.Writer, func(), error) {
	if logFile == "" {
		return os.Stderr, func() {}, nil
	}
	f, cleanup, err := logging.OpenLogFile(logFile)
	if err != nil {
		return nil, nil, err
	}
	return f, cleanup, nil
}
