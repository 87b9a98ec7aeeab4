// Package process supervises bare-metal game-server processes. A
// Registry keyed by title replaces the module-level handles the panel
// used to carry; registration and unregistration are the explicit
// lifecycle hooks.
package process

import (
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/util/sys"
	"github.com/modix-panel/modix/workload"
)

const logTailSize = 1000

// Registry owns every supervised process, keyed by title.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*Process
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*Process)}
}

// Register declares a title and how to launch it. Registering an
// existing title fails with conflict.
func (r *Registry) Register(title, binary string, args []string, dir string) (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.procs[title]; ok {
		return nil, common.New(common.KindConflict, "title %s is already registered", title)
	}
	p := &Process{title: title, binary: binary, args: args, dir: dir}
	r.procs[title] = p
	return p, nil
}

// Unregister stops the process if needed and removes the title.
func (r *Registry) Unregister(title string) error {
	r.mu.Lock()
	p, ok := r.procs[title]
	delete(r.procs, title)
	r.mu.Unlock()

	if !ok {
		return common.New(common.KindNotFound, "title %s is not registered", title)
	}
	if p.IsRunning() {
		return p.Stop(5 * time.Second)
	}
	return nil
}

func (r *Registry) Get(title string) (*Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.procs[title]
	if !ok {
		return nil, common.New(common.KindNotFound, "title %s is not registered", title)
	}
	return p, nil
}

func (r *Registry) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	titles := make([]string, 0, len(r.procs))
	for t := range r.procs {
		titles = append(titles, t)
	}
	return titles
}

// Process is one supervised bare-metal instance. Only one instance per
// title runs at a time; a second start fails with conflict.
type Process struct {
	title  string
	binary string
	args   []string
	dir    string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	tail      *lineTail
	startTime time.Time
	exitErr   error
}

func (p *Process) Title() string { return p.title }

func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running()
}

func (p *Process) running() bool {
	return p.cmd != nil && p.cmd.Process != nil && p.cmd.ProcessState == nil
}

// Start spawns the process with piped stdio.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running() {
		return common.New(common.KindConflict, "%s is already running", p.title)
	}

	cmd := exec.Command(p.binary, p.args...)
	cmd.Dir = p.dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return common.Wrap(common.KindInfrastructure, err, "stdin pipe for %s", p.title)
	}

	tail := newLineTail(logTailSize)
	cmd.Stdout = tail
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return common.Wrap(common.KindInfrastructure, err, "spawn %s", p.title)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.tail = tail
	p.startTime = time.Now()
	p.exitErr = nil

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		tail.closeSubscribers()
		if err != nil {
			logger.Warningf("%s exited: %v", p.title, err)
		} else {
			logger.Infof("%s exited", p.title)
		}
	}()

	logger.Infof("spawned %s (pid %d)", p.title, cmd.Process.Pid)
	return nil
}

// Stop sends SIGTERM and escalates to SIGKILL after the grace window.
func (p *Process) Stop(grace time.Duration) error {
	p.mu.Lock()
	if !p.running() {
		p.mu.Unlock()
		return common.New(common.KindConflict, "%s is not running", p.title)
	}
	cmd := p.cmd
	p.mu.Unlock()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return common.Wrap(common.KindInfrastructure, err, "terminate %s", p.title)
	}

	deadline := time.After(grace)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-deadline:
			_ = cmd.Process.Kill()
			return nil
		case <-tick.C:
			if !p.IsRunning() {
				return nil
			}
		}
	}
}

// Attach returns a duplex channel over the process pipes. Reads deliver
// output lines appearing after the attach.
func (p *Process) Attach() (io.ReadWriteCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running() {
		return nil, common.New(common.KindConflict, "%s is not running", p.title)
	}
	sub := p.tail.subscribe(0)
	return &attachStream{proc: p, sub: sub}, nil
}

// Logs returns the recent tail and, when follow is set, subsequent
// output until the process exits or the reader is closed.
func (p *Process) Logs(tail int, follow bool) (io.ReadCloser, error) {
	p.mu.Lock()
	lt := p.tail
	p.mu.Unlock()

	if lt == nil {
		return nil, common.New(common.KindConflict, "%s has never been started", p.title)
	}
	if !follow {
		return io.NopCloser(strings.NewReader(lt.snapshot(tail))), nil
	}
	sub := lt.subscribe(tail)
	return &subscriberReader{sub: sub, tail: lt}, nil
}

// Stats samples the live process.
func (p *Process) Stats() (*workload.Sample, error) {
	p.mu.Lock()
	if !p.running() {
		p.mu.Unlock()
		return nil, common.New(common.KindConflict, "%s is not running", p.title)
	}
	pid := int32(p.cmd.Process.Pid)
	p.mu.Unlock()

	ps, err := sys.SampleProcess(pid)
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "sample %s", p.title)
	}
	return &workload.Sample{
		CPUPercent:  ps.CPUPercent,
		MemoryUsage: ps.MemoryRSS,
	}, nil
}

// Summary reports the title as a workload row.
func (p *Process) Summary() workload.Summary {
	state := workload.StateStopped
	if p.IsRunning() {
		state = workload.StateRunning
	}
	return workload.Summary{
		ID:    p.title,
		Name:  p.title,
		State: state,
		Image: p.binary,
	}
}

// Uptime in seconds since the last start.
func (p *Process) Uptime() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running() {
		return 0
	}
	return uint64(time.Since(p.startTime).Seconds())
}

// Exec is unsupported on bare-metal workloads; the only channel is the
// interactive stdin.
func (p *Process) Exec(_ context.Context, _ []string) (*workload.ExecResult, error) {
	return nil, common.New(common.KindInvalidArgument, "exec is not supported for bare-metal workloads")
}

// Inspect is unsupported; bare-metal workloads declare no mounts or
// runtime metadata.
func (p *Process) Inspect(_ context.Context) (*workload.Detail, error) {
	return nil, common.New(common.KindInvalidArgument, "inspect is not supported for bare-metal workloads")
}

// Create is unsupported; instances come from Registry.Register.
func (p *Process) Create(_ context.Context, _ *workload.Spec) (string, error) {
	return "", common.New(common.KindInvalidArgument, "create is not supported for bare-metal workloads")
}

// Remove is unsupported; Registry.Unregister retires a title.
func (p *Process) Remove(_ context.Context, _ bool) error {
	return common.New(common.KindInvalidArgument, "remove is not supported for bare-metal workloads")
}

type attachStream struct {
	proc *Process
	sub  *subscriber
}

func (a *attachStream) Read(b []byte) (int, error) { return a.sub.Read(b) }

func (a *attachStream) Write(b []byte) (int, error) {
	a.proc.mu.Lock()
	stdin := a.proc.stdin
	running := a.proc.running()
	a.proc.mu.Unlock()

	if !running || stdin == nil {
		return 0, io.ErrClosedPipe
	}
	return stdin.Write(b)
}

func (a *attachStream) Close() error {
	a.proc.tail.unsubscribe(a.sub)
	return nil
}

type subscriberReader struct {
	sub  *subscriber
	tail *lineTail
}

func (r *subscriberReader) Read(b []byte) (int, error) { return r.sub.Read(b) }

func (r *subscriberReader) Close() error {
	r.tail.unsubscribe(r.sub)
	return nil
}
