package nats

import (
	"encoding/binary"

	"github.com/codebot/rmw-zenoh/errors"
)

// envelope frames an attachment alongside its payload in one NATS
// message body: a 4-byte little-endian attachment length, the
// attachment bytes, then the payload bytes. NATS message headers are
// line-oriented text, unsafe for the binary attachment encoding (see
// package attachment), so the two are concatenated into the body
// instead.
func encodeEnvelope(data, attachment []byte) []byte {
	out := make([]byte, 4+len(attachment)+len(data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(attachment)))
	copy(out[4:4+len(attachment)], attachment)
	copy(out[4+len(attachment):], data)
	return out
}

func decodeEnvelope(raw []byte) (data, attachment []byte, err error) {
	if len(raw) < 4 {
		return nil, nil, errors.WrapInvalid(errors.ErrMalformedAttachment, "nats", "decodeEnvelope", "envelope shorter than length prefix")
	}
	attLen := int(binary.LittleEndian.Uint32(raw[0:4]))
	if attLen < 0 || 4+attLen > len(raw) {
		return nil, nil, errors.WrapInvalid(errors.ErrMalformedAttachment, "nats", "decodeEnvelope", "attachment length exceeds envelope")
	}
	attachment = raw[4 : 4+attLen]
	data = raw[4+attLen:]
	return data, attachment, nil
}
