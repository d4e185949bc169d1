package wsjt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/kr/pty"
)

// decoderRate is the audio rate every batch decoder expects.
const decoderRate = 12000

// Chopper segments a continuous demodulated audio stream into fixed-length
// wave files cut on wall-clock boundaries and hands each sealed file to a
// one-shot batch decoder. Decoded output lines are relayed through a bounded
// channel; Read blocks until a line arrives or the chopper shuts down.
type Chopper struct {
	profile Profile
	source  io.Reader
	dir     string
	depth   int
	id      string

	switchMu sync.Mutex
	cur      *waveFile

	queueMu sync.Mutex
	queue   []string

	lines    chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	decoders sync.WaitGroup
}

func NewChopper(p Profile, source io.Reader, dir string, depth int) *Chopper {
	return &Chopper{
		profile: p,
		source:  source,
		dir:     dir,
		depth:   depth,
		id:      uuid.NewString()[:8],
		lines:   make(chan []byte, 64),
		stop:    make(chan struct{}),
	}
}

func (c *Chopper) Start() error {
	w, err := c.newWindow()
	if err != nil {
		return err
	}
	c.cur = w
	go c.scheduleLoop()
	go c.run()
	return nil
}

// Read returns the next decoded line, or nil once the chopper has shut down.
func (c *Chopper) Read() []byte { return <-c.lines }

// Stop makes the input loop wind down after its current read. The output
// channel closes once in-flight decoders have finished.
func (c *Chopper) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Chopper) newWindow() (*waveFile, error) {
	name := fmt.Sprintf("rxdsp-chopper-%s-%s.wav",
		c.id, time.Now().UTC().Format(c.profile.TimestampLayout))
	return newWaveFile(filepath.Join(c.dir, name), decoderRate)
}

// nextRotation is the next multiple of interval past the top of the current
// hour, so independently started choppers cut aligned windows.
func nextRotation(now time.Time, interval time.Duration) time.Time {
	top := now.Truncate(time.Hour)
	n := now.Sub(top)/interval + 1
	return top.Add(n * interval)
}

func (c *Chopper) scheduleLoop() {
	for {
		d := time.Until(nextRotation(time.Now(), c.profile.Interval))
		select {
		case <-time.After(d):
			c.rotate()
		case <-c.stop:
			return
		}
	}
}

// rotate seals the active window and opens a fresh one. The writer only
// blocks for the swap itself, never for the decode.
func (c *Chopper) rotate() {
	w, err := c.newWindow()
	if err != nil {
		log.Error("could not open chopper window", "err", err)
		return
	}
	c.switchMu.Lock()
	old := c.cur
	c.cur = w
	c.switchMu.Unlock()

	if err := old.Close(); err != nil {
		log.Warn("could not seal chopper window", "file", old.name, "err", err)
	}
	c.queueMu.Lock()
	c.queue = append(c.queue, old.name)
	c.queueMu.Unlock()
}

func (c *Chopper) run() {
	buf := make([]byte, 256)
	for {
		n, err := c.source.Read(buf)
		if n > 0 {
			c.switchMu.Lock()
			_, werr := c.cur.Write(buf[:n])
			c.switchMu.Unlock()
			if werr != nil {
				log.Warn("chopper window write", "err", werr)
			}
		}
		if err != nil || n == 0 {
			log.Debug("chopper input closed", "mode", c.profile.Mode, "err", err)
			break
		}
		select {
		case <-c.stop:
			goto done
		default:
		}
		c.dispatch()
	}
done:
	c.Stop()
	c.decoders.Wait()
	close(c.lines)
	c.switchMu.Lock()
	name := c.cur.name
	c.cur.Close()
	c.switchMu.Unlock()
	// The unfinished window holds audio nothing will decode.
	if err := os.Remove(name); err != nil {
		log.Warn("could not remove undecoded window", "file", name, "err", err)
	}
}

// dispatch pops the most recently sealed window and decodes it concurrently.
func (c *Chopper) dispatch() {
	c.queueMu.Lock()
	if len(c.queue) == 0 {
		c.queueMu.Unlock()
		return
	}
	file := c.queue[len(c.queue)-1]
	c.queue = c.queue[:len(c.queue)-1]
	c.queueMu.Unlock()

	c.decoders.Add(1)
	go c.decodeAndUnlink(file)
}

func (c *Chopper) decodeAndUnlink(file string) {
	defer c.decoders.Done()
	// Consumed whether the decode worked or not; failed windows must not
	// accumulate on disk.
	defer os.Remove(file)

	argv := c.profile.DecoderArgs(c.depth, file)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = c.dir
	f, err := pty.Start(cmd)
	if err != nil {
		log.Error("could not start decoder", "cmd", argv[0], "err", err)
		return
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := append([]byte(nil), s.Bytes()...)
		select {
		case c.lines <- line:
		case <-c.stop:
			cmd.Process.Kill()
			cmd.Wait()
			return
		}
	}
	err = cmd.Wait()
	log.Debug("decoder finished", "mode", c.profile.Mode, "file", filepath.Base(file), "err", err)
}
