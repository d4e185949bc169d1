package pipeline

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/charmbracelet/log"
)

var ErrEmptyChain = errors.New("empty chain")

// Chain is a running pipeline of stages connected stdout to stdin. Every
// stage runs in its own process group and every handle is tracked, so
// Terminate can take down the whole subtree even when a stage forks helpers.
type Chain struct {
	stages []Stage
	cmds   []*exec.Cmd
	out    io.ReadCloser
}

// StartChain spawns the stages left to right. On any spawn failure the
// already started stages are terminated and reaped before returning.
func StartChain(stages []Stage, env []string) (*Chain, error) {
	if len(stages) == 0 {
		return nil, ErrEmptyChain
	}
	c := &Chain{stages: stages}
	var prev io.ReadCloser
	for _, s := range stages {
		cmd := exec.Command(s.Name, s.Args...)
		cmd.Env = append(os.Environ(), append(append([]string{}, env...), s.Env...)...)
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if prev != nil {
			cmd.Stdin = prev
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			c.Terminate()
			c.Wait()
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			c.Terminate()
			c.Wait()
			return nil, err
		}
		c.cmds = append(c.cmds, cmd)
		prev = stdout
	}
	c.out = prev
	return c, nil
}

// Stdout is the terminal stage's output stream.
func (c *Chain) Stdout() io.Reader { return c.out }

// Wait reaps every stage and returns the terminal stage's exit status; nil
// means a clean exit. Call it exactly once per chain.
func (c *Chain) Wait() error {
	var last error
	for _, cmd := range c.cmds {
		last = cmd.Wait()
	}
	return last
}

// Terminate signals every stage's process group without reaping; a process
// that is already gone is not an error. The Wait caller collects the corpses.
func (c *Chain) Terminate() {
	for _, cmd := range c.cmds {
		if cmd.Process == nil {
			continue
		}
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
			log.Warn("could not signal stage", "stage", cmd.Path, "err", err)
		}
	}
}
