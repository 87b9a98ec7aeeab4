// Package logger provides logging for the Modix panel with dual-backend
// output (console/syslog and file) and a buffered tail served to the
// panel log stream.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/modix-panel/modix/config"
	"github.com/op/go-logging"
)

const (
	maxLogBufferSize = 10240
	logFileName      = "modix.log"
	timeFormat       = "2006/01/02 15:04:05"
)

// Entry is one buffered log line. Seq is monotonic for the lifetime of
// the process so stream readers can resume without duplicates.
type Entry struct {
	Seq   int64
	Time  string
	Level logging.Level
	Log   string
}

var (
	logger  *logging.Logger
	logFile *os.File

	bufMu     sync.RWMutex
	logBuffer []Entry
	nextSeq   int64
)

func init() {
	// Stderr default until InitLogger wires the real backends, so early
	// callers and tests never hit a nil logger.
	logger = logging.MustGetLogger("modix")
}

// InitLogger initializes both backends: console/syslog at the given
// level, file always at DEBUG.
func InitLogger(level logging.Level) {
	newLogger := logging.MustGetLogger("modix")
	backends := make([]logging.Backend, 0, 2)

	if consoleBackend := initDefaultBackend(); consoleBackend != nil {
		leveledBackend := logging.AddModuleLevel(consoleBackend)
		leveledBackend.SetLevel(level, "modix")
		backends = append(backends, leveledBackend)
	}

	if fileBackend := initFileBackend(); fileBackend != nil {
		leveledBackend := logging.AddModuleLevel(fileBackend)
		leveledBackend.SetLevel(logging.DEBUG, "modix")
		backends = append(backends, leveledBackend)
	}

	newLogger.SetBackend(logging.MultiLogger(backends...))
	logger = newLogger
}

// initDefaultBackend prefers syslog on unix-like hosts and falls back to
// stderr; Windows has no syslog.
func initDefaultBackend() logging.Backend {
	var backend logging.Backend
	includeTime := false

	if runtime.GOOS == "windows" {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
		includeTime = true
	} else {
		if syslogBackend, err := logging.NewSyslogBackend(""); err != nil {
			fmt.Fprintf(os.Stderr, "syslog backend disabled: %v\n", err)
			backend = logging.NewLogBackend(os.Stderr, "", 0)
			includeTime = os.Getppid() > 0
		} else {
			backend = syslogBackend
		}
	}

	return logging.NewBackendFormatter(backend, newFormatter(includeTime))
}

func initFileBackend() logging.Backend {
	logDir := config.GetLogFolder()
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log folder %s: %v\n", logDir, err)
		return nil
	}

	logPath := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o660)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logPath, err)
		return nil
	}

	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = file

	backend := logging.NewLogBackend(file, "", 0)
	return logging.NewBackendFormatter(backend, newFormatter(true))
}

func newFormatter(withTime bool) logging.Formatter {
	format := `%{level} - %{message}`
	if withTime {
		format = `%{time:` + timeFormat + `} %{level} - %{message}`
	}
	return logging.MustStringFormatter(format)
}

// CloseLogger closes the log file during shutdown.
func CloseLogger() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func Debug(args ...any) {
	logger.Debug(args...)
	addToBuffer("DEBUG", fmt.Sprint(args...))
}

func Debugf(format string, args ...any) {
	logger.Debugf(format, args...)
	addToBuffer("DEBUG", fmt.Sprintf(format, args...))
}

func Info(args ...any) {
	logger.Info(args...)
	addToBuffer("INFO", fmt.Sprint(args...))
}

func Infof(format string, args ...any) {
	logger.Infof(format, args...)
	addToBuffer("INFO", fmt.Sprintf(format, args...))
}

func Notice(args ...any) {
	logger.Notice(args...)
	addToBuffer("NOTICE", fmt.Sprint(args...))
}

func Noticef(format string, args ...any) {
	logger.Noticef(format, args...)
	addToBuffer("NOTICE", fmt.Sprintf(format, args...))
}

func Warning(args ...any) {
	logger.Warning(args...)
	addToBuffer("WARNING", fmt.Sprint(args...))
}

func Warningf(format string, args ...any) {
	logger.Warningf(format, args...)
	addToBuffer("WARNING", fmt.Sprintf(format, args...))
}

func Error(args ...any) {
	logger.Error(args...)
	addToBuffer("ERROR", fmt.Sprint(args...))
}

func Errorf(format string, args ...any) {
	logger.Errorf(format, args...)
	addToBuffer("ERROR", fmt.Sprintf(format, args...))
}

func addToBuffer(level string, newLog string) {
	bufMu.Lock()
	defer bufMu.Unlock()

	if len(logBuffer) >= maxLogBufferSize {
		logBuffer = logBuffer[1:]
	}

	logLevel, _ := logging.LogLevel(level)
	nextSeq++
	logBuffer = append(logBuffer, Entry{
		Seq:   nextSeq,
		Time:  time.Now().Format(timeFormat),
		Level: logLevel,
		Log:   newLog,
	})
}

// GetLogs returns up to c newest entries at or below the given level,
// newest first.
func GetLogs(c int, level string) []string {
	bufMu.RLock()
	defer bufMu.RUnlock()

	var output []string
	logLevel, _ := logging.LogLevel(level)

	for i := len(logBuffer) - 1; i >= 0 && len(output) <= c; i-- {
		if logBuffer[i].Level <= logLevel {
			output = append(output, fmt.Sprintf("%s %s - %s", logBuffer[i].Time, logBuffer[i].Level, logBuffer[i].Log))
		}
	}
	return output
}

// GetLogsSince returns buffered entries with Seq greater than since, in
// order. Stream endpoints poll this to push increments.
func GetLogsSince(since int64) []Entry {
	bufMu.RLock()
	defer bufMu.RUnlock()

	var out []Entry
	for _, e := range logBuffer {
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out
}
