package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	calls []recordedCall
}

type recordedCall struct {
	event       MatchEvent
	countChange int
	remote      EntityDescriptor
}

func (r *recordingObserver) OnMatch(event MatchEvent, countChange int, remote EntityDescriptor) {
	r.calls = append(r.calls, recordedCall{event, countChange, remote})
}

func node(zid, nid, name string) EntityDescriptor {
	return EntityDescriptor{
		ZID:  zid,
		NID:  nid,
		ID:   nid,
		Kind: NodeKind,
		NodeInfo: NodeInfo{
			NodeName: name,
		},
	}
}

func publisher(zid, nid, id, topic string, qos QoS) EntityDescriptor {
	return EntityDescriptor{
		ZID: zid, NID: nid, ID: id, Kind: PublisherKind,
		TopicInfo: &TopicInfo{Name: topic, TypeName: "t", QoS: qos},
		QoS:       qos,
	}
}

func subscription(zid, nid, id, topic string, qos QoS) EntityDescriptor {
	return EntityDescriptor{
		ZID: zid, NID: nid, ID: id, Kind: SubscriptionKind,
		TopicInfo: &TopicInfo{Name: topic, TypeName: "t", QoS: qos},
		QoS:       qos,
	}
}

func TestParsePut_NodeThenTopicEntity(t *testing.T) {
	c := New(nil)
	c.ParsePut(Encode(node("z1", "n1", "planner")))
	c.ParsePut(Encode(publisher("z1", "n1", "p1", "/cmd_vel", QoS{})))

	nodes := c.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "planner", nodes[0].NodeName)

	pubs := c.PublishersForTopic("/cmd_vel")
	require.Len(t, pubs, 1)
	assert.Equal(t, "p1", pubs[0].ID)
}

func TestParsePut_OrphanChildCreatesPendingNode(t *testing.T) {
	c := New(nil)
	c.ParsePut(Encode(publisher("z1", "n1", "p1", "/cmd_vel", QoS{})))

	// Node entry exists (to hold the child) but is not "known" since
	// its own declaration was never seen.
	assert.Empty(t, c.Nodes())
	assert.Equal(t, 1, c.CountPublishers("/cmd_vel"))
}

func TestParseDel_NodeRemovesAllChildrenAtomically(t *testing.T) {
	c := New(nil)
	c.ParsePut(Encode(node("z1", "n1", "planner")))
	c.ParsePut(Encode(publisher("z1", "n1", "p1", "/cmd_vel", QoS{})))
	c.ParsePut(Encode(subscription("z1", "n1", "s1", "/odom", QoS{})))

	c.ParseDel(Encode(node("z1", "n1", "planner")))

	assert.Empty(t, c.Nodes())
	assert.Equal(t, 0, c.CountPublishers("/cmd_vel"))
	assert.Equal(t, 0, c.CountSubscriptions("/odom"))
}

func TestParseDel_LastChildKeepsNodeEntry(t *testing.T) {
	c := New(nil)
	c.ParsePut(Encode(node("z1", "n1", "planner")))
	c.ParsePut(Encode(publisher("z1", "n1", "p1", "/cmd_vel", QoS{})))

	c.ParseDel(Encode(publisher("z1", "n1", "p1", "/cmd_vel", QoS{})))

	nodes := c.Nodes()
	require.Len(t, nodes, 1, "node entry must survive its last child's removal")
	assert.Equal(t, 0, c.CountPublishers("/cmd_vel"))
}

func TestParsePut_MalformedKeyIsIgnored(t *testing.T) {
	c := New(nil)
	c.ParsePut("not a valid key expression")
	assert.Empty(t, c.Nodes())
}

func TestMatch_QoSCompatibleRaisesMatched(t *testing.T) {
	c := New(nil)
	obs := &recordingObserver{}
	localSub := subscription("local", "n1", "s1", "/cmd_vel", QoS{Reliability: ReliabilityReliable})
	c.RegisterLocal(localSub, obs)

	c.ParsePut(Encode(publisher("remote", "n1", "p1", "/cmd_vel", QoS{Reliability: ReliabilityReliable})))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, SubscriptionMatched, obs.calls[0].event)
	assert.Equal(t, 1, obs.calls[0].countChange)
}

func TestMatch_QoSMismatchRaisesIncompatibleOnce(t *testing.T) {
	c := New(nil)
	obs := &recordingObserver{}
	localSub := subscription("local", "n1", "s1", "/cmd_vel", QoS{Reliability: ReliabilityReliable})
	c.RegisterLocal(localSub, obs)

	remotePub := publisher("remote", "n1", "p1", "/cmd_vel", QoS{Reliability: ReliabilityBestEffort})
	c.ParsePut(Encode(remotePub))
	// Re-declaring the same remote (e.g. a duplicate liveliness echo)
	// must not re-raise.
	c.ParsePut(Encode(remotePub))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, RequestedQoSIncompatible, obs.calls[0].event)
}

func TestMatch_LocalPublisherBestEffortVsRemoteReliableSubscriptionRaisesIncompatible(t *testing.T) {
	c := New(nil)
	obs := &recordingObserver{}
	localPub := publisher("local", "n1", "p1", "/cmd_vel", QoS{Reliability: ReliabilityBestEffort})
	c.RegisterLocal(localPub, obs)

	remoteSub := subscription("remote", "n1", "s1", "/cmd_vel", QoS{Reliability: ReliabilityReliable})
	c.ParsePut(Encode(remoteSub))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, OfferedQoSIncompatible, obs.calls[0].event)
}

func TestMatch_LocalPublisherReliableVsRemoteBestEffortSubscriptionRaisesMatched(t *testing.T) {
	c := New(nil)
	obs := &recordingObserver{}
	localPub := publisher("local", "n1", "p1", "/cmd_vel", QoS{Reliability: ReliabilityReliable})
	c.RegisterLocal(localPub, obs)

	remoteSub := subscription("remote", "n1", "s1", "/cmd_vel", QoS{Reliability: ReliabilityBestEffort})
	c.ParsePut(Encode(remoteSub))

	require.Len(t, obs.calls, 1)
	assert.Equal(t, PublicationMatched, obs.calls[0].event)
}

func TestMatch_PeerDropRaisesUnmatched(t *testing.T) {
	c := New(nil)
	obs := &recordingObserver{}
	localSub := subscription("local", "n1", "s1", "/cmd_vel", QoS{})
	c.RegisterLocal(localSub, obs)

	remotePub := publisher("remote", "n1", "p1", "/cmd_vel", QoS{})
	c.ParsePut(Encode(remotePub))
	c.ParseDel(Encode(remotePub))

	require.Len(t, obs.calls, 2)
	assert.Equal(t, SubscriptionMatched, obs.calls[0].event)
	assert.Equal(t, Unmatched, obs.calls[1].event)
	assert.Equal(t, -1, obs.calls[1].countChange)
}

func TestUnregisterLocal_StopsFutureMatching(t *testing.T) {
	c := New(nil)
	obs := &recordingObserver{}
	localSub := subscription("local", "n1", "s1", "/cmd_vel", QoS{})
	c.RegisterLocal(localSub, obs)
	c.UnregisterLocal("local", "s1")

	c.ParsePut(Encode(publisher("remote", "n1", "p1", "/cmd_vel", QoS{})))
	assert.Empty(t, obs.calls)
}
