package gateway

import (
	"compress/flate"
	"errors"
	"io"
)

// zlibStream decompresses Discord's "zlib-stream" transport compression:
// one continuous zlib stream spread across every binary WebSocket frame
// for the life of a connection, each frame ending on a Z_SYNC_FLUSH
// boundary (spec.md §4.1). Only the very first frame carries the 2-byte
// zlib header (0x78 xx); every frame after that is raw deflate
// continuation, so a single flate.Reader is kept alive for the whole
// connection and just fed frame payloads as they arrive.
type zlibStream struct {
	feed    chan []byte
	pending []byte
	reader  io.ReadCloser
	primed  bool
}

func newZlibStream() *zlibStream {
	z := &zlibStream{feed: make(chan []byte, 4)}
	z.reader = flate.NewReader(z)
	return z
}

// Read implements io.Reader by blocking on the feed channel, which is
// how flate.NewReader pulls compressed bytes as they're pushed in by
// write.
func (z *zlibStream) Read(p []byte) (int, error) {
	for len(z.pending) == 0 {
		chunk, ok := <-z.feed
		if !ok {
			return 0, io.EOF
		}
		z.pending = chunk
	}
	n := copy(p, z.pending)
	z.pending = z.pending[n:]
	return n, nil
}

// errShortFrame is returned internally when a frame is too small to
// contain the zlib header expected on the first frame of a stream.
var errShortFrame = errors.New("gateway: frame shorter than zlib header")

// Decompress feeds one binary frame's payload into the stream and
// returns the JSON document(s) it completes, if any. The caller owns
// buf and must not mutate it concurrently.
func (z *zlibStream) Decompress(buf []byte) ([]byte, error) {
	if !z.primed {
		if len(buf) < 2 {
			return nil, errShortFrame
		}
		// Strip the 2-byte zlib header (0x78 0x9c / 0x78 0x01 / ...)
		// on the first frame only; flate.Reader wants raw deflate.
		buf = buf[2:]
		z.primed = true
	}

	z.feed <- buf

	out := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := z.reader.Read(tmp)
		if n > 0 {
			out = append(out, tmp[:n]...)
		}
		if err != nil {
			return out, err
		}
		// A short read (less than the buffer we offered) means the
		// flate reader drained everything available up to the
		// Z_SYNC_FLUSH boundary Discord ends every frame with. Also
		// stop once the input side is drained even on a full-size
		// read, since an output that happens to land on an exact
		// multiple of len(tmp) would otherwise loop into a Read call
		// with no more fed bytes to unblock it.
		if n < len(tmp) || (len(z.pending) == 0 && len(z.feed) == 0) {
			break
		}
	}
	return out, nil
}

// Close releases the underlying flate reader. Safe to call once per
// connection lifetime.
func (z *zlibStream) Close() error {
	close(z.feed)
	return z.reader.Close()
}
