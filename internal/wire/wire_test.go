package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func mustDecode(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return e
}

func TestRoundTrip(t *testing.T) {
	cases := []Entry{
		{},
		{Gen: 42, Source: Fingerprint{Size: 5, ModTime: 1700000000000000000}, Payload: []byte("hello")},
		{Gen: math.MaxUint64, Source: Fingerprint{Size: -1, ModTime: -1}, Payload: []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := mustDecode(t, Encode(tc))
		if got.Gen != tc.Gen || got.Source != tc.Source {
			t.Fatalf("header mismatch: got %+v want %+v", got, tc)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := append(Encode(Entry{Gen: 7, Payload: []byte("x")}), 0xDE, 0xAD)
	if _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(Entry{Gen: 1, Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// plen sits right before the payload
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[hdrLen-4:hdrLen], uint32(len("abc")+1))
	if _, err := Decode(tooLong); err == nil {
		t.Fatalf("expected error on plen beyond buffer")
	}

	if _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := Decode(enc[:hdrLen-1]); err == nil {
		t.Fatalf("expected error on truncated header")
	}
}

func TestChecksumDetectsFlippedPayload(t *testing.T) {
	enc := Encode(Entry{Gen: 3, Payload: []byte("segmentation")})
	enc[len(enc)-1] ^= 0xFF
	if _, err := Decode(enc); err != ErrCorrupt {
		t.Fatalf("expected ErrCorrupt on flipped payload, got %v", err)
	}
}

func TestZeroCopyPayload(t *testing.T) {
	enc := Encode(Entry{Gen: 1, Payload: []byte("Z")})
	e := mustDecode(t, enc)
	if &e.Payload[0] != &enc[hdrLen] {
		t.Fatalf("expected payload to alias the encoded buffer")
	}
}
