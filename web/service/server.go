package service

import (
	"time"

	"github.com/modix-panel/modix/logger"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostStatus is the periodic host sample broadcast to status
// subscribers.
type HostStatus struct {
	T        time.Time `json:"-"`
	Cpu      float64   `json:"cpu"`
	CpuCores int       `json:"cpuCores"`
	Mem      struct {
		Current uint64 `json:"current"`
		Total   uint64 `json:"total"`
	} `json:"mem"`
	Uptime uint64    `json:"uptime"`
	Loads  []float64 `json:"loads"`
}

// ServerService samples host-level metrics.
type ServerService struct{}

func (s *ServerService) GetStatus() *HostStatus {
	status := &HostStatus{T: time.Now()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		status.Cpu = percents[0]
	} else if err != nil {
		logger.Warning("get cpu percent failed:", err)
	}
	if cores, err := cpu.Counts(false); err == nil {
		status.CpuCores = cores
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		status.Mem.Current = memInfo.Used
		status.Mem.Total = memInfo.Total
	} else {
		logger.Warning("get virtual memory failed:", err)
	}
	if uptime, err := host.Uptime(); err == nil {
		status.Uptime = uptime
	}
	if avg, err := load.Avg(); err == nil {
		status.Loads = []float64{avg.Load1, avg.Load5, avg.Load15}
	}

	return status
}
