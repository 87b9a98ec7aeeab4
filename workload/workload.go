// Package workload abstracts the two workload kinds the panel drives:
// containers managed by the host runtime and supervised bare-metal
// processes.
package workload

import (
	"context"
	"io"
	"time"
)

// Deadlines for external runtime calls. Attach and log follow are
// unbounded; their lifetime is the stream session's.
const (
	InspectTimeout   = 10 * time.Second
	LifecycleTimeout = 30 * time.Second
)

// States the panel distinguishes.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Summary is one row of a workload listing.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Image string `json:"image"`
}

// Mount is a declared bind: a destination inside the workload backed by
// a source on the host.
type Mount struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// Detail is the full runtime view of a workload.
type Detail struct {
	Summary
	Mounts []Mount           `json:"mounts"`
	Ports  map[string]string `json:"ports"`
	Labels map[string]string `json:"labels"`
	// RootFS is the merged overlay root, set only for containerized
	// workloads and consulted only when enable_root_fs is on.
	RootFS string `json:"rootFs,omitempty"`
}

// Sample is one metrics reading.
type Sample struct {
	CPUTotal    uint64  `json:"cpuTotal"`
	CPUPercent  float64 `json:"cpuPercent"`
	MemoryUsage uint64  `json:"memoryUsage"`
	MemoryLimit uint64  `json:"memoryLimit"`
	BlockRead   uint64  `json:"blockRead"`
	BlockWrite  uint64  `json:"blockWrite"`
	NetworkRx   uint64  `json:"networkRx"`
	NetworkTx   uint64  `json:"networkTx"`
	Temperature float64 `json:"temperature,omitempty"`
}

// ExecResult is the outcome of a one-shot command.
type ExecResult struct {
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// Spec describes a workload to create. Ports lists container ports that
// need a free host port allocated; Volumes maps host paths to container
// destinations.
type Spec struct {
	Name    string            `json:"name"`
	Image   string            `json:"image"`
	Env     []string          `json:"env"`
	Ports   []int             `json:"ports"`
	Volumes map[string]string `json:"volumes"`
	Labels  map[string]string `json:"labels"`
}

// Driver is the uniform interface over workload kinds. Adapters that do
// not support an operation return invalid_argument rather than omitting
// it.
type Driver interface {
	List(ctx context.Context) ([]Summary, error)
	Inspect(ctx context.Context, id string) (*Detail, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, grace time.Duration) error
	Restart(ctx context.Context, id string) error
	Remove(ctx context.Context, id string, force bool) error
	Create(ctx context.Context, spec *Spec) (string, error)

	// Logs returns a byte-frame reader; finite when follow is false.
	// The reader is not restartable.
	Logs(ctx context.Context, id string, tail int, follow bool) (io.ReadCloser, error)

	// Attach opens a duplex byte channel over the workload's stdio.
	// Usable only when the workload is running.
	Attach(ctx context.Context, id string) (io.ReadWriteCloser, error)

	// Exec runs a one-shot command and captures its output. Refuses
	// when the workload is not running.
	Exec(ctx context.Context, id string, argv []string) (*ExecResult, error)

	Stats(ctx context.Context, id string) (*Sample, error)

	// Processes returns a text table from the first enumeration
	// command that yields output.
	Processes(ctx context.Context, id string) (string, error)
}
