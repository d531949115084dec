package worker

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Process is one exclusively-owned external process handle: a writer for
// framed requests, a reader for framed responses, and a kill switch.
type Process interface {
	Stdin() io.Writer
	Stdout() io.Reader
	Kill() error
}

// Launcher spawns interpreter processes for the pool.
type Launcher interface {
	Launch() (Process, error)
}

// ExecLauncher launches a local child process over stdin/stdout pipes.
// Stderr passes through to the host's stderr so interpreter logs stay
// visible.
type ExecLauncher struct {
	Command []string
	Env     []string
}

func (l ExecLauncher) Launch() (Process, error) {
	if len(l.Command) == 0 {
		return nil, fmt.Errorf("worker: empty launch command")
	}
	cmd := exec.Command(l.Command[0], l.Command[1:]...)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker: start %q: %w", l.Command[0], err)
	}

	p := &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}
	go func() {
		// Reap the child; the read side observes exit via EOF.
		_ = cmd.Wait()
	}()
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Kill() error {
	_ = p.stdin.Close()
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
