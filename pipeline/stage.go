package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage is one process of a demodulation chain, held as a validated argument
// vector instead of a shell fragment.
type Stage struct {
	Name string
	Args []string
	Env  []string
}

func (s Stage) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), " ")
}

// ChainString renders a stage list the way it would read as a shell pipeline,
// for logging only.
func ChainString(stages []Stage) string {
	parts := make([]string, len(stages))
	for i, s := range stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}

func csdr(args ...string) Stage { return Stage{Name: "csdr", Args: args} }

// fixedBuf pins a stage's I/O block size via the csdr environment switch.
func fixedBuf(n int, s Stage) Stage {
	s.Env = append(s.Env, fmt.Sprintf("CSDR_FIXED_BUFSIZE=%d", n))
	return s
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// ChannelSet names the control FIFOs a chain may reference, one field per
// known channel. After a build, only the channels the resolved stages use keep
// their paths; the rest are cleared so no unused filesystem objects exist.
type ChannelSet struct {
	Shift      string
	Bandpass   string
	Squelch    string
	SMeter     string
	Meta       string
	Tee        string
	Tee2       string
	DMRControl string
}

// Paths lists the populated channel paths.
func (c ChannelSet) Paths() []string {
	var paths []string
	for _, p := range []string{c.Shift, c.Bandpass, c.Squelch, c.SMeter, c.Meta, c.Tee, c.Tee2, c.DMRControl} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// Create makes a FIFO for every populated channel.
func (c ChannelSet) Create() error {
	for _, p := range c.Paths() {
		if err := MakeFifo(p); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the FIFOs best-effort.
func (c ChannelSet) Remove() {
	for _, p := range c.Paths() {
		RemoveFifo(p)
	}
}

// SecondaryChannelSet is the channel vocabulary of the secondary chain.
type SecondaryChannelSet struct {
	Shift string
}

func (c SecondaryChannelSet) Paths() []string {
	if c.Shift == "" {
		return nil
	}
	return []string{c.Shift}
}

func (c SecondaryChannelSet) Create() error {
	for _, p := range c.Paths() {
		if err := MakeFifo(p); err != nil {
			return err
		}
	}
	return nil
}

func (c SecondaryChannelSet) Remove() {
	for _, p := range c.Paths() {
		RemoveFifo(p)
	}
}
