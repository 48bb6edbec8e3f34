package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/logging"
)

// =============================================================================
// Size-capped log file
// =============================================================================

// rotatingLog is the log file sink. Once a write would push the file past
// limit bytes, the file is renamed to <path>.1 (older copies shift up to
// <path>.<backups>) and a new one is started. limit <= 0 never rotates.
type rotatingLog struct {
	path    string
	limit   int64
	backups int

	mu   sync.Mutex
	f    *os.File
	size int64
}

func openRotatingLog(path string, limit, backups int) (*rotatingLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("config: create log dir: %w", err)
	}
	l := &rotatingLog{path: path, limit: int64(limit), backups: max(backups, 0)}
	if err := l.reopen(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *rotatingLog) reopen() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("config: open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("config: stat log file: %w", err)
	}
	l.f, l.size = f, st.Size()
	return nil
}

func (l *rotatingLog) backupPath(n int) string {
	return l.path + "." + strconv.Itoa(n)
}

func (l *rotatingLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f != nil && l.limit > 0 && l.size > 0 && l.size+int64(len(p)) > l.limit {
		if err := l.roll(); err != nil {
			return 0, err
		}
	}
	if l.f == nil {
		// a previous roll could not reopen the file
		if err := l.reopen(); err != nil {
			return 0, err
		}
	}
	n, err := l.f.Write(p)
	l.size += int64(n)
	return n, err
}

// roll closes the current file and shifts the backups. l.mu is held.
func (l *rotatingLog) roll() error {
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("config: close log file: %w", err)
	}

	if l.backups == 0 {
		os.Remove(l.path)
	} else {
		os.Remove(l.backupPath(l.backups))
		for n := l.backups - 1; n >= 1; n-- {
			os.Rename(l.backupPath(n), l.backupPath(n+1))
		}
		os.Rename(l.path, l.backupPath(1))
	}
	return l.reopen()
}

func (l *rotatingLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// =============================================================================
// ConfigureLogging
// =============================================================================

// parseLevel maps the [logging] level string onto a pion log level.
// Unknown values fall back to INFO.
func parseLevel(level string) logging.LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		return logging.LogLevelTrace
	case "DEBUG":
		return logging.LogLevelDebug
	case "WARN", "WARNING":
		return logging.LogLevelWarn
	case "ERROR":
		return logging.LogLevelError
	case "OFF", "DISABLED":
		return logging.LogLevelDisabled
	default:
		return logging.LogLevelInfo
	}
}

// ConfigureLogging builds the log sink (rotating file, stdout or both) and
// returns a logger factory writing to it at the configured level. Scopes
// listed in [logging] scopes get their own level.
// Go's standard log package is pointed at the same writer so output from
// libraries that use it ends up in the same file.
//
// Returns a cleanup function that should be called on shutdown.
func ConfigureLogging(cfg *Config) (factory *logging.DefaultLoggerFactory, cleanup func(), err error) {
	cleanup = func() {}
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		file, ferr := openRotatingLog(cfg.LogFile, cfg.LogMaxBytes, cfg.LogBackupCount)
		switch {
		case ferr != nil:
			// keep logging to stdout
			err = ferr
		case cfg.LogToStdout:
			out = io.MultiWriter(file, os.Stdout)
			cleanup = func() { file.Close() }
		default:
			out = file
			cleanup = func() { file.Close() }
		}
	}

	log.SetOutput(out)
	log.SetFlags(log.Ldate | log.Ltime)

	factory = &logging.DefaultLoggerFactory{
		Writer:          out,
		DefaultLogLevel: parseLevel(cfg.LogLevel),
		ScopeLevels:     make(map[string]logging.LogLevel, len(cfg.LogScopes)),
	}
	for scope, level := range cfg.LogScopes {
		factory.ScopeLevels[scope] = parseLevel(level)
	}
	return factory, cleanup, err
}
