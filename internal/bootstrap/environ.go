package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/roach88/testbench/internal/teardown"
)

// processEnv serializes contexts that mutate the process environment. It is
// held from the first mutation in stage 5 until that context's teardown.
var processEnv sync.Mutex

// envHolder names the test holding processEnv, for contention logs.
var envHolder struct {
	mu   sync.Mutex
	name string
}

// envSession applies environment changes for one context and registers
// their undo callbacks.
type envSession struct {
	tracker *teardown.Tracker
	logger  *slog.Logger
	owner   string
	locked  bool
}

// lock acquires processEnv for the rest of the context's life. A context
// waiting on another logs the holder before blocking.
func (s *envSession) lock() {
	if s.locked {
		return
	}
	if !processEnv.TryLock() {
		envHolder.mu.Lock()
		holder := envHolder.name
		envHolder.mu.Unlock()
		s.logger.Warn("waiting for process environment",
			"holder", holder,
			"hint", "tear down the holding application first")
		processEnv.Lock()
	}
	envHolder.mu.Lock()
	envHolder.name = s.owner
	envHolder.mu.Unlock()

	s.locked = true
	s.tracker.OnTeardownLabeled("release process environment", func() error {
		envHolder.mu.Lock()
		envHolder.name = ""
		envHolder.mu.Unlock()
		processEnv.Unlock()
		return nil
	})
}

// set changes key and registers a callback restoring its previous state.
func (s *envSession) set(key, value string) error {
	s.lock()

	prev, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.tracker.OnTeardownLabeled("restore "+key, func() error {
		if had {
			return os.Setenv(key, prev)
		}
		return os.Unsetenv(key)
	})
	return nil
}

// readDotenv parses <base>/.env. A missing file is treated as empty.
func readDotenv(fs afero.Fs, basePath string) (map[string]string, error) {
	path := filepath.Join(basePath, ".env")
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	vars, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vars, nil
}

// lookupEnv reads the process environment.
func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}
