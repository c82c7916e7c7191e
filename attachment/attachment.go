// Package attachment implements the wire codec for the small metadata
// record carried alongside every published sample and every RPC request
// or reply: a sequence number, a source timestamp, and the publishing
// entity's GID.
package attachment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/codebot/rmw-zenoh/errors"
)

// GIDSize is the fixed length of an entity's global id.
const GIDSize = 16

const (
	keySequenceNumber = "sequence_number"
	keySourceTimestamp = "source_timestamp"
	keySourceGID       = "source_gid"
)

// Attachment is the per-message metadata record.
type Attachment struct {
	SequenceNumber  int64
	SourceTimestamp int64
	SourceGID       [GIDSize]byte
}

// Encode serializes a into the fixed three-field wire format. Encoding
// never fails: every field has a fixed, valid representation.
func Encode(a Attachment) []byte {
	var buf bytes.Buffer
	writeField(&buf, keySequenceNumber, encodeInt64(a.SequenceNumber))
	writeField(&buf, keySourceTimestamp, encodeInt64(a.SourceTimestamp))
	writeField(&buf, keySourceGID, a.SourceGID[:])
	return buf.Bytes()
}

// Decode parses the wire format produced by Encode. It rejects unknown,
// misordered, or missing keys, and a source_gid whose length is not
// exactly GIDSize.
func Decode(data []byte) (Attachment, error) {
	var a Attachment
	r := bytes.NewReader(data)

	key, val, err := readField(r)
	if err != nil || key != keySequenceNumber {
		return Attachment{}, wrapMalformed("sequence_number missing or out of order")
	}
	seq, err := decodeInt64(val)
	if err != nil {
		return Attachment{}, wrapMalformed("sequence_number mistyped")
	}
	a.SequenceNumber = seq

	key, val, err = readField(r)
	if err != nil || key != keySourceTimestamp {
		return Attachment{}, wrapMalformed("source_timestamp missing or out of order")
	}
	ts, err := decodeInt64(val)
	if err != nil {
		return Attachment{}, wrapMalformed("source_timestamp mistyped")
	}
	a.SourceTimestamp = ts

	key, val, err = readField(r)
	if err != nil || key != keySourceGID {
		return Attachment{}, wrapMalformed("source_gid missing or out of order")
	}
	if len(val) != GIDSize {
		return Attachment{}, wrapMalformed(fmt.Sprintf("source_gid length %d != %d", len(val), GIDSize))
	}
	copy(a.SourceGID[:], val)

	if r.Len() != 0 {
		return Attachment{}, wrapMalformed("trailing bytes after source_gid")
	}

	return a, nil
}

func wrapMalformed(reason string) error {
	return errors.WrapInvalid(errors.ErrMalformedAttachment, "attachment", "Decode", reason)
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// writeField appends a length-prefixed key name followed by a
// length-prefixed value.
func writeField(buf *bytes.Buffer, key string, value []byte) {
	writeLenPrefixed(buf, []byte(key))
	writeLenPrefixed(buf, value)
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func readField(r *bytes.Reader) (key string, value []byte, err error) {
	keyBytes, err := readLenPrefixed(r)
	if err != nil {
		return "", nil, err
	}
	value, err = readLenPrefixed(r)
	if err != nil {
		return "", nil, err
	}
	return string(keyBytes), value, nil
}
