package wsjt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chzchzchz/rxdsp/store"
)

type fakeMapper struct {
	calls []mapCall
}

type mapCall struct {
	callsign string
	locator  string
	mode     string
	band     *store.Band
}

func (m *fakeMapper) UpdateLocation(callsign, locator, mode string, band *store.Band) {
	m.calls = append(m.calls, mapCall{callsign, locator, mode, band})
}

func testBandplan() *store.Bandplan {
	return store.NewBandplan([]store.Band{
		{Name: "20m", LowerBound: 14000000, UpperBound: 14350000},
		{Name: "40m", LowerBound: 7000000, UpperBound: 7300000},
	})
}

func TestParseFT8(t *testing.T) {
	p := NewParser(nil, nil)
	spot, err := p.Parse([]byte("222100 -15 -0.0  508 ~  CQ EA7MJ IM66"))
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, "FT8", spot.Mode)
	assert.Equal(t, -15.0, spot.DB)
	assert.Equal(t, -0.0, spot.DT)
	assert.Equal(t, 508.0, spot.Freq)
	assert.Equal(t, "CQ EA7MJ IM66", spot.Message)
	assert.Equal(t, 22, spot.Timestamp.Hour())
	assert.Equal(t, 21, spot.Timestamp.Minute())
	assert.Equal(t, 0, spot.Timestamp.Second())
}

func TestParseJT65(t *testing.T) {
	p := NewParser(nil, nil)
	spot, err := p.Parse([]byte("2352  -7  0.4 1801 #  R0WAS R2ABM KO85"))
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, "JT65", spot.Mode)
	assert.Equal(t, -7.0, spot.DB)
	assert.Equal(t, 0.4, spot.DT)
	assert.Equal(t, 1801.0, spot.Freq)
	assert.Equal(t, "R0WAS R2ABM KO85", spot.Message)
	assert.Equal(t, 23, spot.Timestamp.Hour())
	assert.Equal(t, 52, spot.Timestamp.Minute())
}

func TestParseFT4Marker(t *testing.T) {
	p := NewParser(nil, nil)
	spot, err := p.Parse([]byte("222100 -15 -0.0  508 +  CQ EA7MJ IM66"))
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, "FT4", spot.Mode)
}

func TestParseWSPR(t *testing.T) {
	p := NewParser(nil, nil)
	spot, err := p.Parse([]byte("0052 -24  0.4   0.001492 -1  G8AXA JO01 33"))
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, "WSPR", spot.Mode)
	assert.Equal(t, -24.0, spot.DB)
	assert.Equal(t, 0.4, spot.DT)
	assert.Equal(t, 0.001492, spot.Freq)
	assert.Equal(t, -1, spot.Drift)
	assert.Equal(t, "G8AXA JO01 33", spot.Message)
}

func TestParseEmptyMessage(t *testing.T) {
	// jt9 pads nothing past the marker when no payload decoded
	p := NewParser(nil, nil)
	spot, err := p.Parse([]byte("222100 -15 -0.0  508 ~"))
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Equal(t, "FT8", spot.Mode)
	assert.Equal(t, 508.0, spot.Freq)
	assert.Empty(t, spot.Message)
}

func TestParseDiscardsDiagnostics(t *testing.T) {
	p := NewParser(nil, nil)
	for _, line := range []string{"<DecodeFinished>   0   1", " EOF on input file fifo", ""} {
		spot, err := p.Parse([]byte(line))
		assert.NoError(t, err, line)
		assert.Nil(t, spot, line)
	}
}

func TestParseGarbage(t *testing.T) {
	p := NewParser(nil, nil)
	_, err := p.Parse([]byte("no such line"))
	assert.Error(t, err)
}

func TestLocatorUpdatesMapper(t *testing.T) {
	m := &fakeMapper{}
	p := NewParser(m, testBandplan())
	p.SetDialFrequency(14074000)

	_, err := p.Parse([]byte("222100 -15 -0.0  508 ~  CQ EA7MJ IM66"))
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Equal(t, "EA7MJ", m.calls[0].callsign)
	assert.Equal(t, "IM66", m.calls[0].locator)
	assert.Equal(t, "FT8", m.calls[0].mode)
	require.NotNil(t, m.calls[0].band)
	assert.Equal(t, "20m", m.calls[0].band.Name)
}

func TestRR73NeverTriggersMapper(t *testing.T) {
	m := &fakeMapper{}
	p := NewParser(m, testBandplan())
	p.SetDialFrequency(14074000)

	spot, err := p.Parse([]byte("222100 -15 -0.0  508 ~  EA7MJ K1ABC RR73"))
	require.NoError(t, err)
	require.NotNil(t, spot)
	assert.Empty(t, m.calls)
}

func TestNoLocatorNoMapperCall(t *testing.T) {
	m := &fakeMapper{}
	p := NewParser(m, testBandplan())
	p.SetDialFrequency(14074000)

	_, err := p.Parse([]byte("222100 -15 -0.0  508 ~  K1ABC EA7MJ -15"))
	require.NoError(t, err)
	assert.Empty(t, m.calls)
}

func TestWSPRLocatorUpdatesMapper(t *testing.T) {
	m := &fakeMapper{}
	p := NewParser(m, testBandplan())
	p.SetDialFrequency(7038600)

	_, err := p.Parse([]byte("0052 -24  0.4   0.001492 -1  G8AXA JO01 33"))
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Equal(t, "G8AXA", m.calls[0].callsign)
	assert.Equal(t, "JO01", m.calls[0].locator)
	assert.Equal(t, "WSPR", m.calls[0].mode)
	require.NotNil(t, m.calls[0].band)
	assert.Equal(t, "40m", m.calls[0].band.Name)
}

func TestDialFrequencyOutsideBandplan(t *testing.T) {
	m := &fakeMapper{}
	p := NewParser(m, testBandplan())
	p.SetDialFrequency(27000000)

	_, err := p.Parse([]byte("222100 -15 -0.0  508 ~  CQ EA7MJ IM66"))
	require.NoError(t, err)
	require.Len(t, m.calls, 1)
	assert.Nil(t, m.calls[0].band)
}

func TestParseBadTimestamp(t *testing.T) {
	p := NewParser(nil, nil)
	_, err := p.Parse([]byte("997700 -15 -0.0  508 ~  CQ EA7MJ IM66"))
	assert.Error(t, err)
}
