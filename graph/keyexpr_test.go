package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeDescriptor() EntityDescriptor {
	return EntityDescriptor{
		ZID:  "zid-1",
		NID:  "nid-1",
		ID:   "nid-1",
		Kind: NodeKind,
		NodeInfo: NodeInfo{
			DomainID:  0,
			Namespace: "/robot",
			NodeName:  "planner",
			Enclave:   "/",
		},
	}
}

func topicDescriptor() EntityDescriptor {
	d := nodeDescriptor()
	d.ID = "pub-1"
	d.Kind = PublisherKind
	d.TopicInfo = &TopicInfo{
		Name:     "/cmd_vel",
		TypeName: "geometry_msgs/msg/Twist",
		TypeHash: "abc123",
		QoS: QoS{
			Reliability:     ReliabilityReliable,
			Durability:      DurabilityTransientLocal,
			History:         0,
			Depth:           10,
			Deadline:        time.Second,
			Lifespan:        2 * time.Second,
			Liveliness:      1,
			LivelinessLease: 500 * time.Millisecond,
		},
	}
	d.QoS = d.TopicInfo.QoS
	return d
}

func TestEncodeDecode_NodeRoundTrip(t *testing.T) {
	want := nodeDescriptor()
	keyExpr := Encode(want)
	got, ok := Decode(keyExpr)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestEncodeDecode_TopicRoundTrip(t *testing.T) {
	want := topicDescriptor()
	keyExpr := Encode(want)
	got, ok := Decode(keyExpr)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestEncodeDecode_EmptyNamespaceAndEnclaveUsePlaceholder(t *testing.T) {
	want := nodeDescriptor()
	want.NodeInfo.Namespace = ""
	want.NodeInfo.Enclave = ""

	keyExpr := Encode(want)
	assert.Contains(t, keyExpr, "/%/")

	got, ok := Decode(keyExpr)
	require.True(t, ok)
	assert.Equal(t, "", got.NodeInfo.Namespace)
	assert.Equal(t, "", got.NodeInfo.Enclave)
}

func TestEncodeDecode_SlashesInNamesAreMangledReversibly(t *testing.T) {
	want := nodeDescriptor()
	want.NodeInfo.NodeName = "a/b/c"

	keyExpr := Encode(want)
	got, ok := Decode(keyExpr)
	require.True(t, ok)
	assert.Equal(t, "a/b/c", got.NodeInfo.NodeName)
}

func TestDecode_RejectsVersionMismatch(t *testing.T) {
	d := nodeDescriptor()
	keyExpr := Encode(d)
	mismatched := strings.Replace(keyExpr, "/"+Version+"/", "/v999/", 1)

	_, ok := Decode(mismatched)
	assert.False(t, ok)
}

func TestDecode_RejectsMalformedKey(t *testing.T) {
	_, ok := Decode("not/a/valid/key")
	assert.False(t, ok)

	_, ok = Decode("")
	assert.False(t, ok)
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	d := nodeDescriptor()
	keyExpr := Encode(d)
	bad := strings.Replace(keyExpr, "/NN/", "/ZZ/", 1)

	_, ok := Decode(bad)
	assert.False(t, ok)
}
