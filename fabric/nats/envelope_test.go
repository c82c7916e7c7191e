package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrips(t *testing.T) {
	raw := encodeEnvelope([]byte("payload"), []byte("attach"))

	data, attachment, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, []byte("attach"), attachment)
}

func TestEnvelope_EmptyAttachmentRoundTrips(t *testing.T) {
	raw := encodeEnvelope([]byte("payload"), nil)

	data, attachment, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Empty(t, attachment)
}

func TestDecodeEnvelope_RejectsTooShort(t *testing.T) {
	_, _, err := decodeEnvelope([]byte{1, 2})
	assert.Error(t, err)
}

func TestDecodeEnvelope_RejectsAttachmentLengthOverrun(t *testing.T) {
	raw := []byte{0xFF, 0xFF, 0xFF, 0x7F} // huge length, no body
	_, _, err := decodeEnvelope(raw)
	assert.Error(t, err)
}
