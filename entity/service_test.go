package entity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebot/rmw-zenoh/attachment"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric/testfabric"
	"github.com/codebot/rmw-zenoh/graph"
)

func serviceDescriptor(name string) graph.EntityDescriptor {
	return graph.EntityDescriptor{ZID: "z1", NID: "n1", ID: "svc1", Kind: graph.ServiceKind, TopicInfo: &graph.TopicInfo{Name: name, TypeName: "t"}}
}

func clientDescriptor(name string) graph.EntityDescriptor {
	return graph.EntityDescriptor{ZID: "z1", NID: "n1", ID: "cli1", Kind: graph.ClientKind, TopicInfo: &graph.TopicInfo{Name: name, TypeName: "t"}}
}

func TestService_EchoesRequestAndStampsReplySequenceNumber(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	desc := serviceDescriptor("/add")
	svc, err := NewService(ctx, session, cache, mgr, desc, "add", func(req *Request) {
		require.NoError(t, req.Reply(append([]byte("echo:"), req.Payload...)))
	})
	require.NoError(t, err)
	defer svc.Close(ctx)

	reqAtt := attachment.Attachment{SequenceNumber: 42}
	data, replyAttBytes, err := session.Query(ctx, "add", []byte("hi"), attachment.Encode(reqAtt))
	require.NoError(t, err)
	assert.Equal(t, []byte("echo:hi"), data)

	replyAtt, err := attachment.Decode(replyAttBytes)
	require.NoError(t, err)
	assert.Equal(t, int64(42), replyAtt.SequenceNumber)
	assert.Equal(t, deriveGID(desc.ZID, desc.ID), replyAtt.SourceGID)
}

func TestService_MalformedRequestAttachmentRaisesMessageLost(t *testing.T) {
	session := testfabric.New()
	cache := graph.New(nil)
	mgr := events.NewManager()
	ctx := context.Background()

	called := false
	svc, err := NewService(ctx, session, cache, mgr, serviceDescriptor("/add"), "add", func(req *Request) {
		called = true
	})
	require.NoError(t, err)
	defer svc.Close(ctx)

	queryCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, _, err = session.Query(queryCtx, "add", []byte("hi"), []byte("garbage"))
	assert.Error(t, err)
	assert.False(t, called)

	status := mgr.TakeStatus(events.MessageLost)
	assert.Equal(t, 1, status.TotalCount)
}
