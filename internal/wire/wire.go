// Package wire frames cached resource bytes.
//
//	magic(4) | ver(1) | gen(u64 be) | size(i64 be) | mtime(i64 be, unix nanos) |
//	crc(u32 be, IEEE over payload) | plen(u32 be) | payload(plen)
//
// size and mtime fingerprint the source file at read time so a cached copy of a
// file that was replaced on disk is recognized as stale even without a
// generation bump (e.g. an external tool rewrote it).
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 8 + 8 + 8 + 4 + 4
)

var (
	ErrCorrupt = errors.New("caseflow: corrupt cached entry")
	magic4     = [...]byte{'C', 'F', 'L', 'W'}
)

// Fingerprint identifies one version of a file on disk.
type Fingerprint struct {
	Size    int64
	ModTime int64 // unix nanos
}

// Entry is one framed payload.
type Entry struct {
	Gen     uint64
	Source  Fingerprint
	Payload []byte
}

func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(e.Payload))
	buf.Write(magic4[:])
	buf.WriteByte(version)

	var u8 [8]byte
	var u4 [4]byte
	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(e.Source.Size))
	buf.Write(u8[:])
	binary.BigEndian.PutUint64(u8[:], uint64(e.Source.ModTime))
	buf.Write(u8[:])
	binary.BigEndian.PutUint32(u4[:], crc32.ChecksumIEEE(e.Payload))
	buf.Write(u4[:])
	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode validates framing and checksum. The returned payload aliases b.
func Decode(b []byte) (Entry, error) {
	if len(b) < hdrLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5
	var e Entry
	e.Gen = binary.BigEndian.Uint64(b[off:])
	off += 8
	e.Source.Size = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	e.Source.ModTime = int64(binary.BigEndian.Uint64(b[off:]))
	off += 8
	sum := binary.BigEndian.Uint32(b[off:])
	off += 4
	plen := int(binary.BigEndian.Uint32(b[off:]))
	off += 4

	if plen != len(b)-off {
		return Entry{}, ErrCorrupt
	}
	e.Payload = b[off:]
	if crc32.ChecksumIEEE(e.Payload) != sum {
		return Entry{}, ErrCorrupt
	}
	return e, nil
}
