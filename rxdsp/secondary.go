package rxdsp

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/chzchzchz/rxdsp/pipeline"
	"github.com/chzchzchz/rxdsp/wsjt"
)

// secondaryChain is the pair of pipelines hanging off the IF tee taps: a
// spectrum chain for the embedded waterfall and a demodulator chain. Weak
// signal modes additionally run a chopper feeding batch decoders.
type secondaryChain struct {
	fft      *pipeline.Chain
	demod    *pipeline.Chain
	channels pipeline.SecondaryChannelSet
	shiftW   *os.File
	chopper  *wsjt.Chopper
	parser   *wsjt.Parser
}

func (c *Controller) startSecondaryLocked() error {
	if c.channels.Tee == "" || c.channels.Tee2 == "" {
		return fmt.Errorf("secondary chains need the IF tee taps")
	}
	fftStages, err := pipeline.BuildSecondaryFFT(c.params, c.channels.Tee)
	if err != nil {
		return err
	}
	demodStages, used, err := pipeline.BuildSecondaryDemod(c.params, c.channels.Tee2, c.ns.SecondaryChannels())
	if err != nil {
		return err
	}
	if err := used.Create(); err != nil {
		used.Remove()
		return err
	}
	s := &secondaryChain{channels: used}
	fail := func(err error) error {
		c.secondary = s
		c.stopSecondaryLocked()
		return err
	}

	log.Info("starting secondary chains", "mode", c.params.Secondary,
		"fft", pipeline.ChainString(fftStages), "demod", pipeline.ChainString(demodStages))
	env := c.params.Env(c.cfg.PrintBufsizes)
	if s.fft, err = pipeline.StartChain(fftStages, env); err != nil {
		return fail(err)
	}
	if s.demod, err = pipeline.StartChain(demodStages, env); err != nil {
		return fail(err)
	}
	if used.Shift != "" {
		if s.shiftW, err = os.OpenFile(used.Shift, os.O_WRONLY, 0); err != nil {
			return fail(err)
		}
		if _, err = fmt.Fprintf(s.shiftW, "%g\n", -c.cfg.SecondaryOffsetFreq/c.params.IFRate()); err != nil {
			return fail(err)
		}
	}

	if c.out != nil {
		c.out.AddOutput(OutputSecondaryFFT, chunkReader(s.fft.Stdout(), c.params.SecondaryFFTBytesToRead()))
	}
	if c.params.Secondary.WeakSignal() {
		profile, ok := wsjt.ProfileFor(c.params.Secondary)
		if !ok {
			return fail(fmt.Errorf("no chopper profile for %q", c.params.Secondary))
		}
		s.parser = wsjt.NewParser(c.mapper, c.bands)
		s.chopper = wsjt.NewChopper(profile, s.demod.Stdout(), c.cfg.TempDir, c.cfg.DecodingDepth)
		c.secondary = s
		c.pushDialFrequencyLocked()
		if err := s.chopper.Start(); err != nil {
			return fail(err)
		}
		if c.out != nil {
			c.out.AddOutput(OutputWSJTDemod, c.spotRead(s.chopper, s.parser))
		}
		return nil
	}
	if c.out != nil {
		c.out.AddOutput(OutputSecondaryDemod, streamReader(s.demod.Stdout(), 256))
	}
	c.secondary = s
	return nil
}

func (c *Controller) stopSecondaryLocked() {
	s := c.secondary
	if s == nil {
		return
	}
	c.secondary = nil
	if s.chopper != nil {
		s.chopper.Stop()
	}
	if s.shiftW != nil {
		s.shiftW.Close()
	}
	for _, ch := range []*pipeline.Chain{s.fft, s.demod} {
		if ch == nil {
			continue
		}
		ch.Terminate()
		ch.Wait()
	}
	s.channels.Remove()
}

func (c *Controller) pushDialFrequencyLocked() {
	if c.secondary == nil || c.secondary.parser == nil {
		return
	}
	c.secondary.parser.SetDialFrequency(c.cfg.CenterFreq + int64(c.cfg.OffsetFreq))
}

// spotRead relays raw decoder lines while feeding parsed spots to the
// registered handler. Unparseable lines are still forwarded; the batch
// decoders print status text clients may want to see.
func (c *Controller) spotRead(ch *wsjt.Chopper, parser *wsjt.Parser) ReadFunc {
	return func() []byte {
		for {
			line := ch.Read()
			if line == nil {
				return nil
			}
			spot, err := parser.Parse(line)
			if err != nil {
				log.Debug("undecodable spot line", "line", string(line), "err", err)
				return line
			}
			if spot == nil {
				continue
			}
			if h := c.spot.Load(); h != nil && *h != nil {
				(*h)(*spot)
			}
			return line
		}
	}
}
