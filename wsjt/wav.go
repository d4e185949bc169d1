package wsjt

import (
	"encoding/binary"
	"os"
)

type riffHeader struct {
	ChunkId   [4]byte
	ChunkSize uint32
	Format    [4]byte
}

type fmtHeader struct {
	ChunkId       [4]byte /* "fmt " */
	ChunkSize     uint32
	AudioFormat   uint16 /* 1 */
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type dataHeader struct {
	ChunkId   [4]byte /* "data" */
	ChunkSize uint32
}

// waveFile is a mono 16-bit PCM buffer file. The header length fields are
// patched on Close, once the window size is known.
type waveFile struct {
	f       *os.File
	name    string
	rate    uint32
	dataLen uint32
}

func newWaveFile(name string, rate int) (*waveFile, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	w := &waveFile{f: f, name: name, rate: uint32(rate)}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		os.Remove(name)
		return nil, err
	}
	return w, nil
}

func (w *waveFile) Write(p []byte) (int, error) {
	w.dataLen += uint32(len(p))
	return w.f.Write(p)
}

func (w *waveFile) Close() error {
	if _, err := w.f.Seek(0, 0); err != nil {
		w.f.Close()
		return err
	}
	if err := w.writeHeader(w.dataLen); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

func (w *waveFile) writeHeader(dataLen uint32) error {
	rh := &riffHeader{
		ChunkId:   [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize: dataLen + 36,
		Format:    [4]byte{'W', 'A', 'V', 'E'},
	}
	if err := binary.Write(w.f, binary.LittleEndian, rh); err != nil {
		return err
	}
	fh := &fmtHeader{
		ChunkId:       [4]byte{'f', 'm', 't', ' '},
		ChunkSize:     16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    w.rate,
		ByteRate:      w.rate * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
	}
	if err := binary.Write(w.f, binary.LittleEndian, fh); err != nil {
		return err
	}
	dh := &dataHeader{
		ChunkId:   [4]byte{'d', 'a', 't', 'a'},
		ChunkSize: dataLen,
	}
	return binary.Write(w.f, binary.LittleEndian, dh)
}
