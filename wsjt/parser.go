package wsjt

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chzchzchz/rxdsp/store"
)

// Spot is one decoded transmission.
type Spot struct {
	Timestamp time.Time `json:"timestamp"`
	DB        float64   `json:"db"`
	DT        float64   `json:"dt"`
	Freq      float64   `json:"freq"`
	Drift     int       `json:"drift,omitempty"`
	Mode      string    `json:"mode"`
	Message   string    `json:"msg"`
}

// MapUpdater receives callsign locations extracted from decoded payloads.
type MapUpdater interface {
	UpdateLocation(callsign, locator, mode string, band *store.Band)
}

// modeMarkers maps the single-character jt9 mode column to its mode label.
var modeMarkers = map[byte]string{
	'~': "FT8",
	'#': "JT65",
	'@': "JT9",
	'+': "FT4",
}

var (
	locatorPattern      = regexp.MustCompile(`.*\s([A-Z0-9]+)\s([A-R]{2}[0-9]{2})$`)
	wsprSplitterPattern = regexp.MustCompile(`^([A-Z0-9]*)\s([A-R]{2}[0-9]{2})\s([0-9]+)`)
)

// Parser turns fixed-column decoder output lines into spots. It is stateless
// per call apart from the dial frequency set by the controller, which selects
// the band reported with location updates.
type Parser struct {
	mapper   MapUpdater
	bands    *store.Bandplan
	dialFreq int64
	band     *store.Band
}

func NewParser(mapper MapUpdater, bands *store.Bandplan) *Parser {
	return &Parser{mapper: mapper, bands: bands}
}

func (p *Parser) SetDialFrequency(hz int64) {
	p.dialFreq = hz
	if p.bands != nil {
		p.band = p.bands.FindBand(hz)
	}
}

// Parse decodes one line. Diagnostic lines return (nil, nil); a parse failure
// returns an error the caller logs and drops without stopping the stream.
func (p *Parser) Parse(line []byte) (*Spot, error) {
	msg := strings.TrimRight(string(line), " \t\r\n")
	if strings.HasPrefix(msg, "<DecodeFinished>") {
		return nil, nil
	}
	if strings.HasPrefix(msg, " EOF on input file") {
		return nil, nil
	}
	if msg == "" {
		return nil, nil
	}
	// jt9 puts its mode marker at byte 21 after an HHMMSS timestamp or at 19
	// after an HHMM one; lines with neither come from wsprd.
	if isMarker(msg, 21) || isMarker(msg, 19) {
		return p.parseFromJT9(msg)
	}
	return p.parseFromWsprd(msg)
}

func isMarker(msg string, idx int) bool {
	if len(msg) <= idx {
		return false
	}
	_, ok := modeMarkers[msg[idx]]
	return ok
}

func (p *Parser) parseFromJT9(msg string) (*Spot, error) {
	// '222100 -15 -0.0  508 ~  CQ EA7MJ IM66'
	// '2352  -7  0.4 1801 #  R0WAS R2ABM KO85'
	tsWidth := 6
	if isMarker(msg, 19) {
		tsWidth = 4
	}
	ts, err := parseTimestamp(msg[:tsWidth])
	if err != nil {
		return nil, err
	}
	rest := msg[tsWidth+1:]
	// The message text past column 17 may be empty; only the fixed columns
	// through the mode marker are required.
	if len(rest) < 15 {
		return nil, fmt.Errorf("jt9 line too short: %q", msg)
	}
	db, err := strconv.ParseFloat(strings.TrimSpace(rest[0:3]), 64)
	if err != nil {
		return nil, fmt.Errorf("jt9 db column: %w", err)
	}
	dt, err := strconv.ParseFloat(strings.TrimSpace(rest[4:8]), 64)
	if err != nil {
		return nil, fmt.Errorf("jt9 dt column: %w", err)
	}
	freq, err := strconv.Atoi(strings.TrimSpace(rest[9:13]))
	if err != nil {
		return nil, fmt.Errorf("jt9 freq column: %w", err)
	}
	mode, ok := modeMarkers[rest[14]]
	if !ok {
		mode = "unknown"
	}
	text := ""
	if len(rest) > 17 {
		end := len(rest)
		if end > 53 {
			end = 53
		}
		text = strings.TrimSpace(rest[17:end])
	}
	p.updateLocator(text, mode)
	return &Spot{
		Timestamp: ts,
		DB:        db,
		DT:        dt,
		Freq:      float64(freq),
		Mode:      mode,
		Message:   text,
	}, nil
}

func (p *Parser) parseFromWsprd(msg string) (*Spot, error) {
	// '2600 -24  0.4   0.001492 -1  G8AXA JO01 33'
	if len(msg) < 30 {
		return nil, fmt.Errorf("wsprd line too short: %q", msg)
	}
	ts, err := parseTimestamp(msg[0:4])
	if err != nil {
		return nil, err
	}
	db, err := strconv.ParseFloat(strings.TrimSpace(msg[5:8]), 64)
	if err != nil {
		return nil, fmt.Errorf("wsprd db column: %w", err)
	}
	dt, err := strconv.ParseFloat(strings.TrimSpace(msg[9:13]), 64)
	if err != nil {
		return nil, fmt.Errorf("wsprd dt column: %w", err)
	}
	freq, err := strconv.ParseFloat(strings.TrimSpace(msg[14:24]), 64)
	if err != nil {
		return nil, fmt.Errorf("wsprd freq column: %w", err)
	}
	drift, err := strconv.Atoi(strings.TrimSpace(msg[25:28]))
	if err != nil {
		return nil, fmt.Errorf("wsprd drift column: %w", err)
	}
	text := strings.TrimSpace(msg[29:])
	if m := wsprSplitterPattern.FindStringSubmatch(text); m != nil && p.mapper != nil {
		p.mapper.UpdateLocation(m[1], m[2], "WSPR", p.band)
	}
	return &Spot{
		Timestamp: ts,
		DB:        db,
		DT:        dt,
		Freq:      freq,
		Drift:     drift,
		Mode:      "WSPR",
		Message:   text,
	}, nil
}

// parseTimestamp anchors a decoded HHMM or HHMMSS to today's UTC date. A line
// decoded just after midnight for audio captured before it gets yesterday's
// time on today's date; disambiguation is left to the consumer.
func parseTimestamp(s string) (time.Time, error) {
	if len(s) != 4 && len(s) != 6 {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	hour, err := strconv.Atoi(s[0:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	min, err := strconv.Atoi(s[2:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	sec := 0
	if len(s) == 6 {
		if sec, err = strconv.Atoi(s[4:6]); err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %q", s)
		}
	}
	if hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), hour, min, sec, 0, time.UTC), nil
}

func (p *Parser) updateLocator(text, mode string) {
	if p.mapper == nil {
		return
	}
	m := locatorPattern.FindStringSubmatch(text)
	if m == nil {
		return
	}
	// RR73 parses as a grid square in the arctic ocean, but in a payload it
	// is a courtesy sign-off, not a location.
	if m[2] == "RR73" {
		return
	}
	p.mapper.UpdateLocation(m[1], m[2], mode, p.band)
}
