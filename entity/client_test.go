package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric/testfabric"
	"github.com/codebot/rmw-zenoh/graph"
)

func TestClient_SendThenTakeRoundTripsAReply(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	_, err := NewService(ctx, session, cache, mgr, serviceDescriptor("/add"), "add", func(req *Request) {
		require.NoError(t, req.Reply(append([]byte("ok:"), req.Payload...)))
	})
	require.NoError(t, err)

	cli, err := NewClient(ctx, session, cache, mgr, clientDescriptor("/add"), "add")
	require.NoError(t, err)
	defer cli.Close(ctx)

	assert.False(t, cli.ResponseReady().Read())

	seq, err := cli.Send(ctx, []byte("req"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := cli.Take(seq)
		return ok
	}, time.Second, time.Millisecond, "reply never arrived")

	assert.True(t, cli.ResponseReady().Read())
}

func TestClient_TakeReturnsFalseForUnknownSequenceNumber(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	cli, err := NewClient(ctx, session, cache, mgr, clientDescriptor("/add"), "add")
	require.NoError(t, err)
	defer cli.Close(ctx)

	_, ok := cli.Take(999)
	assert.False(t, ok)
}

func TestClient_CallBlocksUntilReply(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	_, err := NewService(ctx, session, cache, mgr, serviceDescriptor("/add"), "add", func(req *Request) {
		require.NoError(t, req.Reply(append([]byte("ok:"), req.Payload...)))
	})
	require.NoError(t, err)

	cli, err := NewClient(ctx, session, cache, mgr, clientDescriptor("/add"), "add")
	require.NoError(t, err)
	defer cli.Close(ctx)

	reply, err := cli.Call(ctx, []byte("req"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok:req"), reply.Payload)
}

func TestClient_CallReturnsErrorWhenNoServicePresent(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	cli, err := NewClient(ctx, session, cache, mgr, clientDescriptor("/nobody"), "nobody")
	require.NoError(t, err)
	defer cli.Close(ctx)

	callCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = cli.Call(callCtx, []byte("req"))
	assert.Error(t, err)

	status := mgr.TakeStatus(events.MessageLost)
	assert.Equal(t, 1, status.TotalCount)
}
