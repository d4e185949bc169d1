package store

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Band is one amateur band of the band plan.
type Band struct {
	Name       string `yaml:"name" json:"name"`
	LowerBound int64  `yaml:"lower_bound" json:"lower_bound"`
	UpperBound int64  `yaml:"upper_bound" json:"upper_bound"`
}

func (b Band) Contains(hz int64) bool { return hz >= b.LowerBound && hz <= b.UpperBound }

// Bandplan looks up which band a dial frequency falls into.
type Bandplan struct {
	rwmu  sync.RWMutex
	bands []Band
}

func NewBandplan(bands []Band) *Bandplan {
	return &Bandplan{bands: bands}
}

func LoadBandplan(fpath string) (*Bandplan, error) {
	buf, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	var plan struct {
		Bands []Band `yaml:"bands"`
	}
	if err := yaml.Unmarshal(buf, &plan); err != nil {
		return nil, fmt.Errorf("bandplan %s: %w", fpath, err)
	}
	return NewBandplan(plan.Bands), nil
}

// FindBand returns the band containing hz, or nil.
func (p *Bandplan) FindBand(hz int64) *Band {
	p.rwmu.RLock()
	defer p.rwmu.RUnlock()
	for i := range p.bands {
		if p.bands[i].Contains(hz) {
			b := p.bands[i]
			return &b
		}
	}
	return nil
}

func (p *Bandplan) Bands() []Band {
	p.rwmu.RLock()
	defer p.rwmu.RUnlock()
	return append([]Band(nil), p.bands...)
}
