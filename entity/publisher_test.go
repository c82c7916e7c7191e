package entity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/bufpool"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric"
	"github.com/codebot/rmw-zenoh/fabric/testfabric"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/shm"
)

func pubDescriptor(topic string, durability graph.Durability) graph.EntityDescriptor {
	qos := graph.QoS{Depth: 4, Durability: durability}
	return graph.EntityDescriptor{
		ZID: "z1", NID: "n1", ID: "p1", Kind: graph.PublisherKind,
		TopicInfo: &graph.TopicInfo{Name: topic, TypeName: "t", QoS: qos},
		QoS:       qos,
	}
}

func testBufPool() *bufpool.Pool {
	return bufpool.New(bufpool.DefaultMaxPoolBytes, nil)
}

func TestPublisher_PublishAssignsIncreasingSequenceNumbers(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	desc := pubDescriptor("/cmd_vel", graph.DurabilityVolatile)
	pub, err := NewPublisher(ctx, session, cache, mgr, desc, "cmd_vel", shm.NoopProvider{}, testBufPool())
	require.NoError(t, err)
	defer pub.Close(ctx)

	received := make(chan fabric.Message, 2)
	sub, err := session.DeclareSubscriber(ctx, "cmd_vel", func(m fabric.Message) { received <- m })
	require.NoError(t, err)
	defer sub.Undeclare(ctx)

	require.NoError(t, pub.Publish(ctx, []byte("a")))
	require.NoError(t, pub.Publish(ctx, []byte("b")))

	m1 := <-received
	m2 := <-received

	att1, err := attachment.Decode(m1.Attachment)
	require.NoError(t, err)
	att2, err := attachment.Decode(m2.Attachment)
	require.NoError(t, err)

	assert.Equal(t, int64(1), att1.SequenceNumber)
	assert.Equal(t, int64(2), att2.SequenceNumber)
	assert.Equal(t, deriveGID(desc.ZID, desc.ID), att1.SourceGID)
	assert.Equal(t, []byte("a"), m1.Data)
	assert.Equal(t, []byte("b"), m2.Data)
}

func TestPublisher_TransientLocalMirrorsIntoPublicationCache(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	pub, err := NewPublisher(ctx, session, cache, mgr, pubDescriptor("/state", graph.DurabilityTransientLocal), "state", shm.NoopProvider{}, testBufPool())
	require.NoError(t, err)
	defer pub.Close(ctx)

	require.NoError(t, pub.Publish(ctx, []byte("1")))
	require.NoError(t, pub.Publish(ctx, []byte("2")))

	history := session.History("state")
	require.Len(t, history, 2)
	assert.Equal(t, []byte("1"), history[0].Data)
	assert.Equal(t, []byte("2"), history[1].Data)
}

func TestPublisher_VolatileDoesNotOpenPublicationCache(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	pub, err := NewPublisher(ctx, session, cache, mgr, pubDescriptor("/cmd_vel", graph.DurabilityVolatile), "cmd_vel", shm.NoopProvider{}, testBufPool())
	require.NoError(t, err)
	defer pub.Close(ctx)

	require.NoError(t, pub.Publish(ctx, []byte("x")))
	assert.Empty(t, session.History("cmd_vel"))
}

func TestPublisher_OfferedQoSIncompatibleWhenRemoteSubscriptionRequiresReliable(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	pub, err := NewPublisher(ctx, session, cache, mgr, pubDescriptor("/cmd_vel", graph.DurabilityVolatile), "cmd_vel", shm.NoopProvider{}, testBufPool())
	require.NoError(t, err)
	defer pub.Close(ctx)

	remoteSub := graph.EntityDescriptor{
		ZID: "z2", NID: "n2", ID: "s1", Kind: graph.SubscriptionKind,
		TopicInfo: &graph.TopicInfo{Name: "/cmd_vel", TypeName: "t", QoS: graph.QoS{Reliability: graph.ReliabilityReliable}},
		QoS:       graph.QoS{Reliability: graph.ReliabilityReliable},
	}
	cache.ParsePut(graph.Encode(remoteSub))

	status := mgr.TakeStatus(events.OfferedQoSIncompatible)
	assert.Equal(t, 1, status.TotalCount)
}

func TestPublisher_PublishServesFromSHMProviderWhenAboveThreshold(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	pool := testBufPool()
	provider := shm.NewPooledProvider(pool, 2)

	pub, err := NewPublisher(ctx, session, cache, mgr, pubDescriptor("/big", graph.DurabilityVolatile), "big", provider, pool)
	require.NoError(t, err)
	defer pub.Close(ctx)

	received := make(chan fabric.Message, 1)
	sub, err := session.DeclareSubscriber(ctx, "big", func(m fabric.Message) { received <- m })
	require.NoError(t, err)
	defer sub.Undeclare(ctx)

	require.NoError(t, pub.Publish(ctx, []byte("payload")))
	m := <-received
	assert.Equal(t, []byte("payload"), m.Data)
}
