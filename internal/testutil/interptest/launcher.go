// Package interptest launches in-process mock interpreters over pipes so
// worker and pool tests run against the real framed protocol without
// spawning child processes.
package interptest

import (
	"io"
	"sync"

	"github.com/danmuck/bridgectl/internal/mockinterp"
	"github.com/danmuck/bridgectl/internal/worker"
)

// Launcher satisfies worker.Launcher; every Launch starts a fresh
// mockinterp serving one pipe pair.
type Launcher struct {
	Cfg mockinterp.Config

	mu       sync.Mutex
	launched int
}

// Launched reports how many processes were started.
func (l *Launcher) Launched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launched
}

func (l *Launcher) Launch() (worker.Process, error) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	interp := mockinterp.New(l.Cfg)
	go func() {
		_ = interp.Serve(reqR, respW)
		_ = respW.Close()
	}()

	l.mu.Lock()
	l.launched++
	l.mu.Unlock()

	return &pipeProcess{stdin: reqW, stdout: respR}, nil
}

type pipeProcess struct {
	stdin  *io.PipeWriter
	stdout *io.PipeReader
	once   sync.Once
}

func (p *pipeProcess) Stdin() io.Writer  { return p.stdin }
func (p *pipeProcess) Stdout() io.Reader { return p.stdout }

// Kill tears down both pipe ends: the serve loop sees EOF and the worker's
// read loop unblocks, exactly like a child process dying.
func (p *pipeProcess) Kill() error {
	p.once.Do(func() {
		_ = p.stdin.Close()
		_ = p.stdout.Close()
	})
	return nil
}
