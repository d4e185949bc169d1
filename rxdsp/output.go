package rxdsp

import (
	"bufio"
	"io"
	"os"
)

// Names of the demodulator output streams.
const (
	OutputAudio          = "audio"
	OutputSMeter         = "smeter"
	OutputMeta           = "meta"
	OutputSecondaryFFT   = "secondary_fft"
	OutputSecondaryDemod = "secondary_demod"
	OutputWSJTDemod      = "wsjt_demod"
)

// ReadFunc returns the next frame of an output stream, blocking until one is
// available. A nil return means the stream has ended.
type ReadFunc func() []byte

// Output receives the demodulator's stream taps. AddOutput hands over a
// ReadFunc the sink pumps from its own goroutine; Reset drops every stream
// ahead of a chain teardown.
type Output interface {
	AddOutput(name string, read ReadFunc)
	Reset()
}

// streamReader forwards whatever the pipe delivers, preserving write
// boundaries well enough for byte streams like audio.
func streamReader(r io.Reader, bufsize int) ReadFunc {
	return func() []byte {
		buf := make([]byte, bufsize)
		n, err := r.Read(buf)
		if n <= 0 || err != nil {
			return nil
		}
		return buf[:n]
	}
}

// chunkReader delivers fixed-size frames, for streams where the consumer
// needs whole FFT blocks.
func chunkReader(r io.Reader, size int) ReadFunc {
	return func() []byte {
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil
		}
		return buf
	}
}

func lineReader(r io.Reader) ReadFunc {
	s := bufio.NewScanner(r)
	return func() []byte {
		if !s.Scan() {
			return nil
		}
		return append([]byte(nil), s.Bytes()...)
	}
}

// fifoLineReader opens a named pipe on first use. The open blocks until the
// producing stage opens its end, so it must happen on the pump goroutine, not
// during chain setup.
func fifoLineReader(path string) ReadFunc {
	var f *os.File
	var next ReadFunc
	return func() []byte {
		if next == nil {
			var err error
			if f, err = os.OpenFile(path, os.O_RDONLY, 0); err != nil {
				return nil
			}
			next = lineReader(f)
		}
		b := next()
		if b == nil {
			f.Close()
		}
		return b
	}
}
