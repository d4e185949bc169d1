package rxdsp

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/chzchzchz/rxdsp/dsp"
	"github.com/chzchzchz/rxdsp/pipeline"
	"github.com/chzchzchz/rxdsp/store"
	"github.com/chzchzchz/rxdsp/wsjt"
)

// DemodulatorConfig is everything a receiver chain is parameterized by.
// Fields that change the chain topology take effect through a restart; the
// rest are pushed to the running stages over their control FIFOs.
type DemodulatorConfig struct {
	Mode      dsp.Mode
	Secondary dsp.SecondaryMode

	SampleRate int
	OutputRate int

	FFTSize          int
	FFTFps           int
	FFTAverages      int
	SecondaryFFTSize int

	AudioCompression pipeline.Compression
	FFTCompression   pipeline.Compression

	NCHost string
	NCPort int

	CenterFreq          int64
	OffsetFreq          float64
	SecondaryOffsetFreq float64
	BpfLowCut           float64
	BpfHighCut          float64
	SquelchLevel        float64

	UnvoicedQuality int
	DecodingDepth   int
	TempDir         string

	DynamicBufsize bool
	BaseBufsize    int
	PrintBufsizes  bool
	Passthrough    bool
}

func DefaultConfig() DemodulatorConfig {
	return DemodulatorConfig{
		Mode:                dsp.ModeNFM,
		SampleRate:          250000,
		OutputRate:          11025,
		FFTSize:             1024,
		FFTFps:              5,
		FFTAverages:         50,
		SecondaryFFTSize:    1024,
		AudioCompression:    pipeline.CompressionNone,
		FFTCompression:      pipeline.CompressionADPCM,
		NCHost:              "127.0.0.1",
		NCPort:              4951,
		SecondaryOffsetFreq: 1000,
		BpfLowCut:           -4000,
		BpfHighCut:          4000,
		UnvoicedQuality:     1,
		DecodingDepth:       3,
		TempDir:             "/tmp",
		BaseBufsize:         1024,
	}
}

// Controller owns a receiver's process chains and control FIFOs. One mutex
// serializes every lifecycle and setter call; the stop and reconfigure flags
// let the watcher goroutine tell a deliberate teardown from a crash without
// taking the lock.
type Controller struct {
	mu   sync.Mutex
	cfg  DemodulatorConfig
	out  Output
	spot atomic.Pointer[func(wsjt.Spot)]

	bands  *store.Bandplan
	mapper wsjt.MapUpdater

	running       bool
	stopRequested atomic.Bool
	reconfiguring atomic.Bool

	ns        pipeline.Namespace
	params    pipeline.Params
	chain     *pipeline.Chain
	chainDone chan struct{}
	channels  pipeline.ChannelSet

	shiftW   *os.File
	bpfW     *os.File
	squelchW *os.File
	dmrW     *os.File

	secondary *secondaryChain
}

func NewController(cfg DemodulatorConfig, out Output, bands *store.Bandplan, mapper wsjt.MapUpdater) *Controller {
	return &Controller{
		cfg:    cfg,
		out:    out,
		bands:  bands,
		mapper: mapper,
		ns:     pipeline.NewNamespace(cfg.TempDir),
	}
}

// OnSpot registers the handler invoked for every decoded weak-signal spot.
func (c *Controller) OnSpot(h func(wsjt.Spot)) { c.spot.Store(&h) }

func (c *Controller) Config() DemodulatorConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.stopRequested.Store(false)
	return c.startLocked()
}

func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.stopRequested.Store(true)
	c.stopLocked()
}

func (c *Controller) Restart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	return c.restartLocked()
}

func (c *Controller) restartLocked() error {
	c.reconfiguring.Store(true)
	defer c.reconfiguring.Store(false)
	c.stopLocked()
	return c.startLocked()
}

func (c *Controller) buildParams() (pipeline.Params, error) {
	audioRate := dsp.AudioRate(c.cfg.Mode, c.cfg.Secondary, c.cfg.OutputRate)
	profile, err := dsp.NewRateProfile(c.cfg.SampleRate, audioRate)
	if err != nil {
		return pipeline.Params{}, err
	}
	return pipeline.Params{
		Mode:             c.cfg.Mode,
		Secondary:        c.cfg.Secondary,
		SampleRate:       c.cfg.SampleRate,
		OutputRate:       c.cfg.OutputRate,
		AudioRate:        audioRate,
		Profile:          profile,
		FFTSize:          c.cfg.FFTSize,
		FFTFps:           c.cfg.FFTFps,
		FFTAverages:      c.cfg.FFTAverages,
		SecondaryFFTSize: c.cfg.SecondaryFFTSize,
		AudioCompression: c.cfg.AudioCompression,
		FFTCompression:   c.cfg.FFTCompression,
		DynamicBufsize:   c.cfg.DynamicBufsize,
		BaseBufsize:      c.cfg.BaseBufsize,
		Passthrough:      c.cfg.Passthrough,
		NCHost:           c.cfg.NCHost,
		NCPort:           c.cfg.NCPort,
		UnvoicedQuality:  c.cfg.UnvoicedQuality,
	}, nil
}

func (c *Controller) startLocked() error {
	params, err := c.buildParams()
	if err != nil {
		return err
	}
	stages, used, err := pipeline.BuildPrimary(params, c.ns.Channels())
	if err != nil {
		return err
	}
	if err := used.Create(); err != nil {
		used.Remove()
		return err
	}
	log.Info("starting chain", "mode", params.Mode, "pipeline", pipeline.ChainString(stages))
	chain, err := pipeline.StartChain(stages, params.Env(c.cfg.PrintBufsizes))
	if err != nil {
		used.Remove()
		return err
	}
	c.params = params
	c.chain = chain
	c.channels = used
	c.running = true

	if err := c.openControlsLocked(); err != nil {
		log.Error("could not attach control fifos", "err", err)
		c.stopLocked()
		return err
	}
	c.attachOutputsLocked()

	if params.Secondary != dsp.SecondaryNone {
		if err := c.startSecondaryLocked(); err != nil {
			log.Error("could not start secondary chain", "mode", params.Secondary, "err", err)
			c.stopLocked()
			return err
		}
	}

	done := make(chan struct{})
	c.chainDone = done
	go c.watch(chain, done)
	return nil
}

// openControlsLocked opens the write side of each control FIFO the build
// referenced and pushes the current settings. These opens block until the
// owning stage opens its read end, which it does at startup.
func (c *Controller) openControlsLocked() error {
	open := func(path string) (*os.File, error) {
		if path == "" {
			return nil, nil
		}
		return os.OpenFile(path, os.O_WRONLY, 0)
	}
	var err error
	if c.shiftW, err = open(c.channels.Shift); err != nil {
		return err
	}
	if c.bpfW, err = open(c.channels.Bandpass); err != nil {
		return err
	}
	if c.squelchW, err = open(c.channels.Squelch); err != nil {
		return err
	}
	if c.dmrW, err = open(c.channels.DMRControl); err != nil {
		return err
	}
	if err := c.pushOffsetLocked(); err != nil {
		return err
	}
	if err := c.pushBandpassLocked(); err != nil {
		return err
	}
	return c.pushSquelchLocked()
}

func (c *Controller) attachOutputsLocked() {
	if c.out == nil {
		return
	}
	// The spectrum chain is the terminal stage in fft mode, so its frames
	// ride the audio stream slot.
	if c.params.Mode == dsp.ModeFFT {
		c.out.AddOutput(OutputAudio, chunkReader(c.chain.Stdout(), c.params.FFTBytesToRead()))
		return
	}
	c.out.AddOutput(OutputAudio, streamReader(c.chain.Stdout(), 4096))
	if c.channels.SMeter != "" {
		c.out.AddOutput(OutputSMeter, fifoLineReader(c.channels.SMeter))
	}
	if c.channels.Meta != "" {
		c.out.AddOutput(OutputMeta, fifoLineReader(c.channels.Meta))
	}
}

// stopLocked tears down the secondary chain, the control handles, the primary
// chain and its FIFOs, in that order. Safe to call on a partially started
// receiver.
func (c *Controller) stopLocked() {
	c.stopSecondaryLocked()
	for _, f := range []**os.File{&c.shiftW, &c.bpfW, &c.squelchW, &c.dmrW} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if c.chain != nil {
		c.chain.Terminate()
		if c.chainDone != nil {
			<-c.chainDone
		} else {
			c.chain.Wait()
		}
		c.chain = nil
		c.chainDone = nil
	}
	c.channels.Remove()
	c.channels = pipeline.ChannelSet{}
	if c.out != nil {
		c.out.Reset()
	}
	c.running = false
}

// watch restarts the chain when it winds down on its own, which happens when
// the feed server closes the connection. A signalled teardown never restarts:
// Terminate makes the exit status non-nil, and the flags cover the window
// where a stop or reconfigure is underway but the kill has not landed yet.
func (c *Controller) watch(chain *pipeline.Chain, done chan struct{}) {
	err := chain.Wait()
	close(done)
	if err != nil {
		return
	}
	if c.stopRequested.Load() || c.reconfiguring.Load() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.chain != chain {
		return
	}
	log.Info("chain exited cleanly, restarting", "mode", c.params.Mode)
	// Already reaped; keep stopLocked from waiting on it again.
	c.chain = nil
	c.chainDone = nil
	if err := c.restartLocked(); err != nil {
		log.Error("could not restart chain", "err", err)
	}
}

func (c *Controller) SetCenterFreq(hz int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.CenterFreq = hz
	c.pushDialFrequencyLocked()
}

// SetOffsetFreq retunes the shift stage in place.
func (c *Controller) SetOffsetFreq(hz float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.OffsetFreq = hz
	c.pushDialFrequencyLocked()
	return c.pushOffsetLocked()
}

func (c *Controller) pushOffsetLocked() error {
	if c.shiftW == nil {
		return nil
	}
	_, err := fmt.Fprintf(c.shiftW, "%g\n", -c.cfg.OffsetFreq/float64(c.cfg.SampleRate))
	return err
}

// SetBandpass moves the audio passband, given in Hz relative to the tuned
// frequency.
func (c *Controller) SetBandpass(lowCut, highCut float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.BpfLowCut, c.cfg.BpfHighCut = lowCut, highCut
	return c.pushBandpassLocked()
}

func (c *Controller) pushBandpassLocked() error {
	if c.bpfW == nil {
		return nil
	}
	ifRate := c.params.IFRate()
	_, err := fmt.Fprintf(c.bpfW, "%g %g\n", c.cfg.BpfLowCut/ifRate, c.cfg.BpfHighCut/ifRate)
	return err
}

// SetSquelchLevel sets the power threshold below which audio is muted.
func (c *Controller) SetSquelchLevel(level float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.SquelchLevel = level
	return c.pushSquelchLocked()
}

// actualSquelch forces the squelch open for digital voice; the decoders carry
// their own sync detection and starve on gated input.
func (c *Controller) actualSquelch() float64 {
	if c.cfg.Mode.DigitalVoice() {
		return 0
	}
	return c.cfg.SquelchLevel
}

func (c *Controller) pushSquelchLocked() error {
	if c.squelchW == nil {
		return nil
	}
	_, err := fmt.Fprintf(c.squelchW, "%g\n", c.actualSquelch())
	return err
}

// SetDMRFilter forwards an opaque filter line to the decoder's control
// channel, selecting which timeslots pass through to the synthesizer.
func (c *Controller) SetDMRFilter(filter string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dmrW == nil {
		return nil
	}
	_, err := fmt.Fprintf(c.dmrW, "%s\n", filter)
	return err
}

func (c *Controller) SetMode(m dsp.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Mode == m {
		return nil
	}
	c.cfg.Mode = m
	return c.maybeRestartLocked()
}

func (c *Controller) SetSecondaryMode(m dsp.SecondaryMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.Secondary == m {
		return nil
	}
	c.cfg.Secondary = m
	return c.maybeRestartLocked()
}

func (c *Controller) SetSampleRate(rate int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.SampleRate == rate {
		return nil
	}
	c.cfg.SampleRate = rate
	return c.maybeRestartLocked()
}

// SetOutputRate records the client's audio rate. It only matters for the next
// chain build, so no restart happens here.
func (c *Controller) SetOutputRate(rate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.OutputRate = rate
}

func (c *Controller) SetFFTSize(size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.FFTSize == size {
		return nil
	}
	c.cfg.FFTSize = size
	return c.maybeRestartLocked()
}

func (c *Controller) SetFFTFps(fps int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.FFTFps == fps {
		return nil
	}
	c.cfg.FFTFps = fps
	return c.maybeRestartLocked()
}

func (c *Controller) SetFFTAverages(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.FFTAverages == n {
		return nil
	}
	c.cfg.FFTAverages = n
	return c.maybeRestartLocked()
}

func (c *Controller) SetSecondaryFFTSize(size int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.SecondaryFFTSize == size {
		return nil
	}
	c.cfg.SecondaryFFTSize = size
	return c.maybeRestartLocked()
}

func (c *Controller) SetAudioCompression(comp pipeline.Compression) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.AudioCompression == comp {
		return nil
	}
	c.cfg.AudioCompression = comp
	return c.maybeRestartLocked()
}

func (c *Controller) SetFFTCompression(comp pipeline.Compression) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.FFTCompression == comp {
		return nil
	}
	c.cfg.FFTCompression = comp
	return c.maybeRestartLocked()
}

func (c *Controller) SetUnvoicedQuality(q int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.UnvoicedQuality == q {
		return nil
	}
	c.cfg.UnvoicedQuality = q
	return c.maybeRestartLocked()
}

func (c *Controller) maybeRestartLocked() error {
	if !c.running {
		return nil
	}
	return c.restartLocked()
}
