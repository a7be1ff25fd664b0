package flatfile

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

const (
	opPut    byte = 1
	opDelete byte = 2

	// op u8 | key length u16 | record length u32
	frameHeaderSize = 1 + 2 + 4
	checksumSize    = 8
)

var bin = binary.LittleEndian

// frame is one log entry: a put carries the record, a delete is a
// tombstone for the key.
type frame struct {
	op     byte
	key    []byte
	record []byte
}

func (f frame) size() int {
	return frameHeaderSize + len(f.key) + len(f.record) + checksumSize
}

// recordOffset is where the record starts relative to the frame start.
func (f frame) recordOffset() int {
	return frameHeaderSize + len(f.key)
}

func (f frame) MarshalBinary() ([]byte, error) {
	if len(f.key) > 1<<16-1 {
		return nil, errors.Errorf("key of %d bytes does not fit a frame", len(f.key))
	}

	buf := make([]byte, f.size())
	buf[0] = f.op
	bin.PutUint16(buf[1:3], uint16(len(f.key)))
	bin.PutUint32(buf[3:7], uint32(len(f.record)))
	n := frameHeaderSize
	n += copy(buf[n:], f.key)
	n += copy(buf[n:], f.record)
	bin.PutUint64(buf[n:], xxhash.Sum64(buf[:n]))
	return buf, nil
}

// frameLength reads the total frame length from its header.
func frameLength(header []byte) (int, error) {
	if len(header) < frameHeaderSize {
		return 0, errors.New("short frame header")
	}
	if op := header[0]; op != opPut && op != opDelete {
		return 0, errors.Errorf("invalid frame op %d", op)
	}
	keyLen := int(bin.Uint16(header[1:3]))
	recLen := int(bin.Uint32(header[3:7]))
	return frameHeaderSize + keyLen + recLen + checksumSize, nil
}

func (f *frame) UnmarshalBinary(d []byte) error {
	n, err := frameLength(d)
	if err != nil {
		return err
	}
	if len(d) < n {
		return errors.Errorf("frame needs %d bytes, got %d", n, len(d))
	}

	body := n - checksumSize
	if sum := bin.Uint64(d[body:n]); sum != xxhash.Sum64(d[:body]) {
		return errors.New("frame checksum mismatch")
	}

	keyLen := int(bin.Uint16(d[1:3]))
	f.op = d[0]
	f.key = d[frameHeaderSize : frameHeaderSize+keyLen]
	f.record = d[frameHeaderSize+keyLen : body]
	return nil
}
