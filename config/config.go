// Package config exposes the panel configuration, read from MODIX_*
// environment variables with optional .env loading.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

//go:embed version
var version string

//go:embed name
var name string

type LogLevel string

const (
	Debug  LogLevel = "debug"
	Info   LogLevel = "info"
	Notice LogLevel = "notice"
	Warn   LogLevel = "warn"
	Error  LogLevel = "error"
)

func init() {
	// A missing .env is fine, plain env vars are enough.
	_ = godotenv.Load()
}

func GetVersion() string {
	return strings.TrimSpace(version)
}

func GetName() string {
	return strings.TrimSpace(name)
}

func GetLogLevel() LogLevel {
	if IsDebug() {
		return Debug
	}
	logLevel := os.Getenv("MODIX_LOG_LEVEL")
	if logLevel == "" {
		return Info
	}
	return LogLevel(logLevel)
}

func IsDebug() bool {
	return os.Getenv("MODIX_DEBUG") == "true"
}

func GetDBFolderPath() string {
	dbFolderPath := os.Getenv("MODIX_DB_FOLDER")
	if dbFolderPath == "" {
		dbFolderPath = "/etc/modix"
	}
	return dbFolderPath
}

func GetDBPath() string {
	return fmt.Sprintf("%s/%s.db", GetDBFolderPath(), GetName())
}

func GetLogFolder() string {
	logFolderPath := os.Getenv("MODIX_LOG_FOLDER")
	if logFolderPath == "" {
		logFolderPath = "/var/log"
	}
	return logFolderPath
}

// GetSeedPath returns the declarative seed file read at bootstrap.
func GetSeedPath() string {
	seedPath := os.Getenv("MODIX_SEED_FILE")
	if seedPath == "" {
		seedPath = GetDBFolderPath() + "/seed.toml"
	}
	return seedPath
}

// GetDataRootPath is the folder holding per-workload placeholder
// directories and volume binds.
func GetDataRootPath() string {
	dataRoot := os.Getenv("MODIX_DATA_ROOT")
	if dataRoot == "" {
		dataRoot = "/var/lib/modix/workloads"
	}
	return dataRoot
}

func GetListen() string {
	return os.Getenv("MODIX_LISTEN")
}

func GetPort() int {
	port, err := strconv.Atoi(os.Getenv("MODIX_PORT"))
	if err != nil || port <= 0 || port > 65535 {
		return 2086
	}
	return port
}
