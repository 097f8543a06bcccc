package gateway

import (
	"bytes"
	"compress/zlib"
	"testing"
)

func TestZlibStreamDecompressesSingleFramePayload(t *testing.T) {
	want := []byte(`{"op":0,"t":"READY","d":{}}`)

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(want); err != nil {
		t.Fatalf("compress fixture: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close compressor: %v", err)
	}

	z := newZlibStream()
	defer z.Close()

	got, err := z.Decompress(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected decompress error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestZlibStreamRejectsFrameShorterThanHeader(t *testing.T) {
	z := newZlibStream()
	defer z.Close()

	if _, err := z.Decompress([]byte{0x78}); err != errShortFrame {
		t.Fatalf("expected errShortFrame for a 1-byte first frame, got %v", err)
	}
}
