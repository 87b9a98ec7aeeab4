// Package sys samples resource usage of supervised bare-metal processes.
package sys

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcSample is a point-in-time reading for one PID.
type ProcSample struct {
	CPUPercent float64 `json:"cpuPercent"`
	MemoryRSS  uint64  `json:"memoryRss"`
	Threads    int32   `json:"threads"`
	Uptime     uint64  `json:"uptime"`
}

// SampleProcess reads cpu, memory and thread counters for pid.
func SampleProcess(pid int32) (*ProcSample, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}

	sample := &ProcSample{}

	if cpu, err := p.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		sample.MemoryRSS = mem.RSS
	}
	if threads, err := p.NumThreads(); err == nil {
		sample.Threads = threads
	}
	if created, err := p.CreateTime(); err == nil {
		sample.Uptime = uint64(time.Since(time.UnixMilli(created)).Seconds())
	}

	return sample, nil
}
