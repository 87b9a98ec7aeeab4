// Package docker adapts the host's Docker runtime to the workload
// driver contract.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/workload"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// ManagedLabel marks containers created through the panel.
const ManagedLabel = "modix.managed"

// Host port allocation range for created workloads.
const (
	portRangeLow  = 30000
	portRangeHigh = 40000
)

// Enumeration commands tried in order by Processes.
var processCommands = [][]string{
	{"ps", "aux"},
	{"ps", "-ef"},
	{"top", "-b", "-n", "1"},
}

type Driver struct {
	cli *client.Client
}

// New connects to the local Docker daemon using the standard environment
// configuration.
func New() (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "connect docker daemon")
	}
	return &Driver{cli: cli}, nil
}

// mapErr converts SDK errors into the panel taxonomy.
func mapErr(err error, format string, a ...any) error {
	switch {
	case err == nil:
		return nil
	case errdefs.IsNotFound(err):
		return common.Wrap(common.KindNotFound, err, format, a...)
	case errdefs.IsConflict(err):
		return common.Wrap(common.KindConflict, err, format, a...)
	case errors.Is(err, context.DeadlineExceeded):
		return common.Wrap(common.KindTimeout, err, format, a...)
	default:
		return common.Wrap(common.KindInfrastructure, err, format, a...)
	}
}

func (d *Driver) List(ctx context.Context) ([]workload.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, workload.InspectTimeout)
	defer cancel()

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, mapErr(err, "list containers")
	}

	summaries := make([]workload.Summary, 0, len(containers))
	for _, c := range containers {
		name := c.ID[:12]
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		summaries = append(summaries, workload.Summary{
			ID:    c.ID,
			Name:  name,
			State: c.State,
			Image: c.Image,
		})
	}
	return summaries, nil
}

func (d *Driver) Inspect(ctx context.Context, id string) (*workload.Detail, error) {
	ctx, cancel := context.WithTimeout(ctx, workload.InspectTimeout)
	defer cancel()
	return d.inspect(ctx, id)
}

func (d *Driver) inspect(ctx context.Context, id string) (*workload.Detail, error) {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return nil, mapErr(err, "inspect container %s", id)
	}

	detail := &workload.Detail{
		Summary: workload.Summary{
			ID:    info.ID,
			Name:  strings.TrimPrefix(info.Name, "/"),
			State: info.State.Status,
			Image: info.Config.Image,
		},
		Ports:  map[string]string{},
		Labels: info.Config.Labels,
	}

	for _, m := range info.Mounts {
		detail.Mounts = append(detail.Mounts, workload.Mount{
			Source:      m.Source,
			Destination: m.Destination,
		})
	}
	for port, bindings := range info.NetworkSettings.Ports {
		if len(bindings) > 0 {
			detail.Ports[string(port)] = bindings[0].HostPort
		}
	}
	if info.GraphDriver.Data != nil {
		detail.RootFS = info.GraphDriver.Data["MergedDir"]
	}
	return detail, nil
}

func (d *Driver) Start(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, workload.LifecycleTimeout)
	defer cancel()
	return mapErr(d.cli.ContainerStart(ctx, id, container.StartOptions{}), "start container %s", id)
}

func (d *Driver) Stop(ctx context.Context, id string, grace time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, workload.LifecycleTimeout)
	defer cancel()

	secs := int(grace.Seconds())
	return mapErr(d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs}), "stop container %s", id)
}

func (d *Driver) Restart(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, workload.LifecycleTimeout)
	defer cancel()
	return mapErr(d.cli.ContainerRestart(ctx, id, container.StopOptions{}), "restart container %s", id)
}

func (d *Driver) Remove(ctx context.Context, id string, force bool) error {
	ctx, cancel := context.WithTimeout(ctx, workload.LifecycleTimeout)
	defer cancel()
	return mapErr(d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}), "remove container %s", id)
}

// Create allocates host ports, materialises volume binds and runs the
// container. Port allocation happens before any runtime side effect so
// exhaustion fails the whole creation cleanly.
func (d *Driver) Create(ctx context.Context, spec *workload.Spec) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, workload.LifecycleTimeout)
	defer cancel()

	if spec.Image == "" {
		return "", common.New(common.KindInvalidArgument, "workload spec needs an image")
	}

	hostPorts, err := d.allocatePorts(ctx, len(spec.Ports))
	if err != nil {
		return "", err
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for i, containerPort := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return "", common.Wrap(common.KindInvalidArgument, err, "container port %d", containerPort)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPorts[i])}}
	}

	binds := make([]string, 0, len(spec.Volumes))
	for hostPath, dest := range spec.Volumes {
		binds = append(binds, hostPath+":"+dest)
	}

	labels := map[string]string{ManagedLabel: "true"}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			Labels:       labels,
			ExposedPorts: exposed,
			Tty:          true,
			OpenStdin:    true,
		},
		&container.HostConfig{
			Binds:        binds,
			PortBindings: bindings,
		},
		nil, nil, spec.Name)
	if err != nil {
		return "", mapErr(err, "create container %s", spec.Name)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, mapErr(err, "start created container %s", spec.Name)
	}

	logger.Infof("created workload %s (%s)", spec.Name, resp.ID[:12])
	return resp.ID, nil
}

// allocatePorts picks n free host ports, skipping ports already bound by
// running containers and verifying each with a bind probe.
func (d *Driver) allocatePorts(ctx context.Context, n int) ([]int, error) {
	if n == 0 {
		return nil, nil
	}

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, mapErr(err, "list bound ports")
	}
	used := map[int]bool{}
	for _, c := range containers {
		for _, p := range c.Ports {
			if p.PublicPort > 0 {
				used[int(p.PublicPort)] = true
			}
		}
	}

	out := make([]int, 0, n)
	for port := portRangeLow; port <= portRangeHigh && len(out) < n; port++ {
		if used[port] {
			continue
		}
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		_ = l.Close()
		out = append(out, port)
	}
	if len(out) < n {
		return nil, common.New(common.KindConflict, "no free host ports in %d-%d", portRangeLow, portRangeHigh)
	}
	return out, nil
}

func (d *Driver) Logs(ctx context.Context, id string, tail int, follow bool) (io.ReadCloser, error) {
	info, err := d.inspectWithDeadline(ctx, id)
	if err != nil {
		return nil, err
	}

	tailArg := "all"
	if tail > 0 {
		tailArg = strconv.Itoa(tail)
	}
	rc, err := d.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tailArg,
		Follow:     follow,
	})
	if err != nil {
		return nil, mapErr(err, "logs for container %s", id)
	}

	if info.tty {
		return rc, nil
	}
	// Non-TTY log streams arrive multiplexed; demux into a plain pipe.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		_ = rc.Close()
		_ = pw.CloseWithError(err)
	}()
	return pr, nil
}

type inspectLite struct {
	running bool
	tty     bool
}

func (d *Driver) inspectWithDeadline(ctx context.Context, id string) (*inspectLite, error) {
	ictx, cancel := context.WithTimeout(ctx, workload.InspectTimeout)
	defer cancel()

	info, err := d.cli.ContainerInspect(ictx, id)
	if err != nil {
		return nil, mapErr(err, "inspect container %s", id)
	}
	return &inspectLite{running: info.State.Running, tty: info.Config.Tty}, nil
}

// hijackStream adapts a hijacked attach connection to io.ReadWriteCloser.
type hijackStream struct {
	resp types.HijackedResponse
}

func (h *hijackStream) Read(p []byte) (int, error)  { return h.resp.Reader.Read(p) }
func (h *hijackStream) Write(p []byte) (int, error) { return h.resp.Conn.Write(p) }
func (h *hijackStream) Close() error {
	h.resp.Close()
	return nil
}

func (d *Driver) Attach(ctx context.Context, id string) (io.ReadWriteCloser, error) {
	info, err := d.inspectWithDeadline(ctx, id)
	if err != nil {
		return nil, err
	}
	if !info.running {
		return nil, common.New(common.KindConflict, "container %s is not running", id)
	}

	resp, err := d.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, mapErr(err, "attach container %s", id)
	}
	return &hijackStream{resp: resp}, nil
}

func (d *Driver) Exec(ctx context.Context, id string, argv []string) (*workload.ExecResult, error) {
	info, err := d.inspectWithDeadline(ctx, id)
	if err != nil {
		return nil, err
	}
	if !info.running {
		return nil, common.New(common.KindConflict, "container %s is not running", id)
	}
	if len(argv) == 0 {
		return nil, common.New(common.KindInvalidArgument, "empty command")
	}

	execResp, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, mapErr(err, "exec create on %s", id)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, mapErr(err, "exec attach on %s", id)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil && err != io.EOF {
		return nil, mapErr(err, "exec read on %s", id)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, mapErr(err, "exec inspect on %s", id)
	}

	return &workload.ExecResult{ExitCode: inspect.ExitCode, Output: buf.String()}, nil
}

func (d *Driver) Stats(ctx context.Context, id string) (*workload.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, workload.InspectTimeout)
	defer cancel()

	resp, err := d.cli.ContainerStats(ctx, id, false)
	if err != nil {
		return nil, mapErr(err, "stats for container %s", id)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := jsonDecode(resp.Body, &stats); err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "decode stats for %s", id)
	}

	sample := &workload.Sample{
		CPUTotal:    stats.CPUStats.CPUUsage.TotalUsage,
		MemoryUsage: stats.MemoryStats.Usage,
		MemoryLimit: stats.MemoryStats.Limit,
	}

	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if cpuDelta > 0 && sysDelta > 0 {
		online := float64(stats.CPUStats.OnlineCPUs)
		if online == 0 {
			online = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
		}
		sample.CPUPercent = cpuDelta / sysDelta * online * 100.0
	}

	for _, entry := range stats.BlkioStats.IoServiceBytesRecursive {
		switch strings.ToLower(entry.Op) {
		case "read":
			sample.BlockRead += entry.Value
		case "write":
			sample.BlockWrite += entry.Value
		}
	}
	for _, netStats := range stats.Networks {
		sample.NetworkRx += netStats.RxBytes
		sample.NetworkTx += netStats.TxBytes
	}
	return sample, nil
}

// Processes tries the enumeration commands in order and returns the
// first non-empty output.
func (d *Driver) Processes(ctx context.Context, id string) (string, error) {
	var lastErr error
	for _, argv := range processCommands {
		result, err := d.Exec(ctx, id, argv)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(result.Output) != "" {
			return result.Output, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", common.New(common.KindNotFound, "no process listing available for %s", id)
}
