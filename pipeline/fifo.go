package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Namespace generates per-instance FIFO paths so concurrently running
// receivers never collide in the temporary directory.
type Namespace struct {
	base string
}

func NewNamespace(dir string) Namespace {
	return Namespace{base: filepath.Join(dir, "rxdsp_pipe_"+uuid.NewString()+"_")}
}

func (n Namespace) Path(name string) string { return n.base + name }

// Channels returns the candidate path set a primary chain build selects from.
func (n Namespace) Channels() ChannelSet {
	return ChannelSet{
		Shift:      n.Path("shift"),
		Bandpass:   n.Path("bpf"),
		Squelch:    n.Path("squelch"),
		SMeter:     n.Path("smeter"),
		Meta:       n.Path("meta"),
		Tee:        n.Path("iqtee"),
		Tee2:       n.Path("iqtee2"),
		DMRControl: n.Path("dmr_control"),
	}
}

func (n Namespace) SecondaryChannels() SecondaryChannelSet {
	return SecondaryChannelSet{Shift: n.Path("secondary_shift")}
}

func MakeFifo(path string) error {
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0644); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

// RemoveFifo deletes a control FIFO best-effort; teardown must not fail on a
// missing path.
func RemoveFifo(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("could not remove control fifo", "path", path, "err", err)
	}
}
