package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

// Delimiter terminates every frame on the wire.
const Delimiter byte = '\n'

var (
	ErrEmbeddedDelimiter = errors.New("frame: payload contains delimiter")
	ErrFrameTooLarge     = errors.New("frame: frame too large")
	ErrTruncatedFrame    = errors.New("frame: stream ended mid-frame")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 1024 * 1024,
	}
}

func (l Limits) WithDefaults() Limits {
	if l.MaxFrameBytes <= 0 {
		l.MaxFrameBytes = DefaultLimits().MaxFrameBytes
	}
	return l
}

// Encode returns payload followed by the delimiter.
func Encode(payload []byte) ([]byte, error) {
	if bytes.IndexByte(payload, Delimiter) >= 0 {
		return nil, ErrEmbeddedDelimiter
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, payload...)
	return append(out, Delimiter), nil
}

// Reader yields frames from a byte stream one at a time.
type Reader struct {
	r      *bufio.Reader
	limits Limits
}

func NewReader(r io.Reader, limits Limits) *Reader {
	limits = limits.WithDefaults()
	size := 4096
	if limits.MaxFrameBytes < size {
		size = limits.MaxFrameBytes + 1
	}
	return &Reader{r: bufio.NewReaderSize(r, size), limits: limits}
}

// Next returns the next frame without its delimiter. io.EOF is returned only on
// a clean frame boundary.
func (fr *Reader) Next() ([]byte, error) {
	var line []byte
	for {
		chunk, err := fr.r.ReadSlice(Delimiter)
		if len(line)+len(chunk) > fr.limits.MaxFrameBytes+1 {
			return nil, ErrFrameTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, ErrTruncatedFrame
		}
		return nil, err
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > fr.limits.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	return line, nil
}

// Writer encodes frames onto a byte stream. Safe for concurrent use; each frame
// is written with a single Write call.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	limits Limits
}

func NewWriter(w io.Writer, limits Limits) *Writer {
	return &Writer{w: w, limits: limits.WithDefaults()}
}

func (fw *Writer) WriteFrame(payload []byte) error {
	if len(payload) > fw.limits.MaxFrameBytes {
		return ErrFrameTooLarge
	}
	encoded, err := Encode(payload)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err = fw.w.Write(encoded)
	return err
}
