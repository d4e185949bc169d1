package wsjt

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chzchzchz/rxdsp/dsp"
)

func TestNextRotation(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, tt := range []struct {
		now      time.Time
		interval time.Duration
		want     time.Time
	}{
		// mid-window rounds up to the next boundary
		{base.Add(7*time.Minute + 7*time.Second), 15 * time.Second, base.Add(7*time.Minute + 15*time.Second)},
		// on a boundary the next rotation is a full interval away
		{base.Add(7*time.Minute + 15*time.Second), 15 * time.Second, base.Add(7*time.Minute + 30*time.Second)},
		{base, 15 * time.Second, base.Add(15 * time.Second)},
		// non-integral second intervals stay hour-aligned
		{base.Add(10 * time.Second), 7500 * time.Millisecond, base.Add(15 * time.Second)},
		{base.Add(time.Minute), 7500 * time.Millisecond, base.Add(time.Minute + 7500*time.Millisecond)},
		{base.Add(59 * time.Minute), 2 * time.Minute, base.Add(time.Hour)},
	} {
		got := nextRotation(tt.now, tt.interval)
		assert.Equal(t, tt.want, got, "now=%v interval=%v", tt.now, tt.interval)
	}
}

func TestNextRotationAgreesAcrossStarts(t *testing.T) {
	// Two choppers started at different times within the same window must
	// pick the same boundary.
	base := time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)
	a := nextRotation(base.Add(3*time.Second), 15*time.Second)
	b := nextRotation(base.Add(11*time.Second), 15*time.Second)
	assert.Equal(t, a, b)
}

func TestProfileFor(t *testing.T) {
	for _, tt := range []struct {
		mode     dsp.SecondaryMode
		interval time.Duration
		argv0    string
		flag     string
	}{
		{dsp.SecondaryFT8, 15 * time.Second, "jt9", "--ft8"},
		{dsp.SecondaryFT4, 7500 * time.Millisecond, "jt9", "--ft4"},
		{dsp.SecondaryJT65, 60 * time.Second, "jt9", "--jt65"},
		{dsp.SecondaryJT9, 60 * time.Second, "jt9", "--jt9"},
	} {
		p, ok := ProfileFor(tt.mode)
		require.True(t, ok, tt.mode)
		assert.Equal(t, tt.interval, p.Interval, tt.mode)
		argv := p.DecoderArgs(3, "buf.wav")
		assert.Equal(t, []string{tt.argv0, tt.flag, "-d", "3", "buf.wav"}, argv, tt.mode)
	}
}

func TestProfileForWSPR(t *testing.T) {
	p, ok := ProfileFor(dsp.SecondaryWSPR)
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, p.Interval)
	assert.Equal(t, []string{"wsprd", "-d", "buf.wav"}, p.DecoderArgs(3, "buf.wav"))
}

func TestProfileForUnknown(t *testing.T) {
	_, ok := ProfileFor(dsp.SecondaryBPSK31)
	assert.False(t, ok)
	_, ok = ProfileFor(dsp.SecondaryNone)
	assert.False(t, ok)
}

func sealedWindow(t *testing.T, c *Chopper) string {
	t.Helper()
	w, err := c.newWindow()
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 64))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.name
}

func TestDispatchDecodesAndUnlinks(t *testing.T) {
	profile := Profile{
		Mode:            "FT8",
		Interval:        15 * time.Second,
		TimestampLayout: "060102_150405",
		DecoderArgs: func(depth int, file string) []string {
			return []string{"echo", "decoded", filepath.Base(file)}
		},
	}
	c := NewChopper(profile, strings.NewReader(""), t.TempDir(), 3)
	name := sealedWindow(t, c)
	c.queue = append(c.queue, name)

	c.dispatch()
	line := c.Read()
	require.NotNil(t, line)
	assert.Contains(t, string(line), "decoded")
	assert.Contains(t, string(line), filepath.Base(name))

	// consumed windows never linger, decoded or not
	c.decoders.Wait()
	_, err := os.Stat(name)
	assert.True(t, os.IsNotExist(err))
	c.Stop()
}

func TestDispatchUnlinksOnDecoderFailure(t *testing.T) {
	profile := Profile{
		Mode:            "FT8",
		Interval:        15 * time.Second,
		TimestampLayout: "060102_150405",
		DecoderArgs: func(depth int, file string) []string {
			return []string{"false"}
		},
	}
	c := NewChopper(profile, strings.NewReader(""), t.TempDir(), 3)
	name := sealedWindow(t, c)
	c.queue = append(c.queue, name)

	c.dispatch()
	c.decoders.Wait()
	_, err := os.Stat(name)
	assert.True(t, os.IsNotExist(err))
	c.Stop()
}

func TestRunRemovesUndecodedWindow(t *testing.T) {
	profile, ok := ProfileFor(dsp.SecondaryFT8)
	require.True(t, ok)
	dir := t.TempDir()
	c := NewChopper(profile, strings.NewReader("pcm data"), dir, 3)
	require.NoError(t, c.Start())

	// input drains immediately; the open window is discarded, not decoded
	assert.Nil(t, c.Read())
	assert.Eventually(t, func() bool {
		ents, err := os.ReadDir(dir)
		return err == nil && len(ents) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestWaveFileHeader(t *testing.T) {
	name := filepath.Join(t.TempDir(), "chop.wav")
	w, err := newWaveFile(name, 12000)
	require.NoError(t, err)

	samples := make([]byte, 480)
	_, err = w.Write(samples)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()

	var rh riffHeader
	var fh fmtHeader
	var dh dataHeader
	require.NoError(t, binary.Read(f, binary.LittleEndian, &rh))
	require.NoError(t, binary.Read(f, binary.LittleEndian, &fh))
	require.NoError(t, binary.Read(f, binary.LittleEndian, &dh))

	assert.Equal(t, [4]byte{'R', 'I', 'F', 'F'}, rh.ChunkId)
	assert.Equal(t, uint32(480+36), rh.ChunkSize)
	assert.Equal(t, uint16(1), fh.NumChannels)
	assert.Equal(t, uint32(12000), fh.SampleRate)
	assert.Equal(t, uint32(24000), fh.ByteRate)
	assert.Equal(t, uint16(16), fh.BitsPerSample)
	assert.Equal(t, uint32(480), dh.ChunkSize)

	fi, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(44+480), fi.Size())
}
