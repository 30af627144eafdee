package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestEncode_Header(t *testing.T) {
	payload := []byte("hello")
	frame := Encode(payload)

	if len(frame) != 8+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), 8+len(payload))
	}
	if got := binary.BigEndian.Uint64(frame[:8]); got != uint64(len(payload)) {
		t.Errorf("length prefix = %d, want %d", got, len(payload))
	}
	if !bytes.Equal(frame[8:], payload) {
		t.Errorf("payload = %q, want %q", frame[8:], payload)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("first"),
		{},
		[]byte("third payload with more bytes"),
		{0x00, 0xFF, 0x00},
	}

	var dec Decoder
	for _, p := range payloads {
		out := dec.Append(Encode(p))
		if len(out) != 1 {
			t.Fatalf("got %d payloads, want 1", len(out))
		}
		if !bytes.Equal(out[0], p) {
			t.Errorf("decode(encode(%q)) = %q", p, out[0])
		}
	}
	if dec.Buffered() != 0 {
		t.Errorf("decoder retains %d bytes after clean frames", dec.Buffered())
	}
}

func TestDecoder_FragmentationInvariance(t *testing.T) {
	frame := append(Encode([]byte("alpha")), Encode([]byte("beta"))...)

	// Whole-stream reference.
	var ref Decoder
	want := ref.Append(frame)

	// Every split point, fed in two chunks.
	for split := 0; split <= len(frame); split++ {
		var dec Decoder
		got := dec.Append(frame[:split])
		got = append(got, dec.Append(frame[split:])...)

		if len(got) != len(want) {
			t.Fatalf("split %d: got %d payloads, want %d", split, len(got), len(want))
		}
		for i := range got {
			if !bytes.Equal(got[i], want[i]) {
				t.Errorf("split %d: payload %d = %q, want %q", split, i, got[i], want[i])
			}
		}
	}

	// Byte-at-a-time.
	var dec Decoder
	var got [][]byte
	for i := range frame {
		got = append(got, dec.Append(frame[i:i+1])...)
	}
	if len(got) != 2 || !bytes.Equal(got[0], []byte("alpha")) || !bytes.Equal(got[1], []byte("beta")) {
		t.Errorf("byte-at-a-time decode = %q", got)
	}
}

func TestDecoder_CoalescedFrames(t *testing.T) {
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, Encode([]byte{byte(i)})...)
	}

	var dec Decoder
	out := dec.Append(stream)
	if len(out) != 5 {
		t.Fatalf("got %d payloads, want 5", len(out))
	}
	for i, p := range out {
		if len(p) != 1 || p[0] != byte(i) {
			t.Errorf("payload %d = %v", i, p)
		}
	}
}

func TestDecoder_RetainsPartialTail(t *testing.T) {
	frame := Encode([]byte("tail"))

	var dec Decoder
	if out := dec.Append(frame[:3]); out != nil {
		t.Fatalf("incomplete header must yield nothing, got %q", out)
	}
	if dec.Buffered() != 3 {
		t.Errorf("buffered = %d, want 3", dec.Buffered())
	}
	out := dec.Append(frame[3:])
	if len(out) != 1 || string(out[0]) != "tail" {
		t.Errorf("completing the frame yields %q", out)
	}
}

func TestDecoder_PayloadIndependentOfBuffer(t *testing.T) {
	var dec Decoder
	out := dec.Append(Encode([]byte("stable")))
	payload := out[0]

	// Feeding more data must not alias previously returned payloads.
	dec.Append(Encode(bytes.Repeat([]byte("x"), 64)))
	if string(payload) != "stable" {
		t.Errorf("payload mutated to %q after further appends", payload)
	}
}

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("stream helper")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	payload, err := ReadFrame(&buf, 0)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(payload) != "stream helper" {
		t.Errorf("payload = %q", payload)
	}
}

func TestReadFrame_MaxLen(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteFrame(&buf, bytes.Repeat([]byte("a"), 100))

	if _, err := ReadFrame(&buf, 10); err == nil {
		t.Error("ReadFrame must reject frames beyond maxLen")
	}
}
