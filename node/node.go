// Package node implements the rmw-level node: the liveliness token
// that announces a node's existence on the graph, plus the four
// collections of topic-level entities (publishers, subscriptions,
// services, clients) it owns and tears down together on Shutdown.
package node

import (
	"context"
	"sync"

	"github.com/codebot/rmw-zenoh/bufpool"
	"github.com/codebot/rmw-zenoh/entity"
	"github.com/codebot/rmw-zenoh/errors"
	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/fabric"
	"github.com/codebot/rmw-zenoh/graph"
	"github.com/codebot/rmw-zenoh/shm"
)

// IDGenerator hands out stable, process-unique entity ids. Node never
// assigns ids itself; it is handed one by its owning context so every
// node shares the same counter, matching the original's single
// per-context entity-id sequence.
type IDGenerator func() string

// Node owns a namespace-scoped liveliness token plus its child
// entities.
type Node struct {
	desc      graph.EntityDescriptor
	session   fabric.Session
	cache     *graph.Cache
	nextID    IDGenerator
	token     fabric.LivelinessToken
	shm       shm.Provider
	bufPool   *bufpool.Pool

	mu            sync.Mutex
	publishers    map[string]*entity.Publisher
	subscriptions map[string]*entity.Subscription
	services      map[string]*entity.Service
	clients       map[string]*entity.Client
	closed        bool
}

// New declares desc's liveliness token and returns an empty node ready
// to own entities. desc.Kind must be graph.NodeKind. provider and
// bufPool are handed down to every publisher this node creates, to
// back its per-sample buffer allocation (§4.9 steps 1-2).
func New(ctx context.Context, session fabric.Session, cache *graph.Cache, desc graph.EntityDescriptor, provider shm.Provider, bufPool *bufpool.Pool, nextID IDGenerator) (*Node, error) {
	token, err := session.DeclareLivelinessToken(ctx, graph.Encode(desc))
	if err != nil {
		return nil, errors.WrapTransient(err, "Node", "New", "declare liveliness token")
	}

	return &Node{
		desc:          desc,
		session:       session,
		cache:         cache,
		nextID:        nextID,
		token:         token,
		shm:           provider,
		bufPool:       bufPool,
		publishers:    make(map[string]*entity.Publisher),
		subscriptions: make(map[string]*entity.Subscription),
		services:      make(map[string]*entity.Service),
		clients:       make(map[string]*entity.Client),
	}, nil
}

// Descriptor returns the node's graph identity.
func (n *Node) Descriptor() graph.EntityDescriptor {
	return n.desc
}

func (n *Node) childDescriptor(kind graph.Kind, topic graph.TopicInfo, qos graph.QoS) graph.EntityDescriptor {
	topic.QoS = qos
	return graph.EntityDescriptor{
		ZID:       n.desc.ZID,
		NID:       n.desc.NID,
		ID:        n.nextID(),
		Kind:      kind,
		NodeInfo:  n.desc.NodeInfo,
		TopicInfo: &topic,
		QoS:       qos,
	}
}

// CreatePublisher declares a publisher named topic and adds it to the
// node's publisher set under id.
func (n *Node) CreatePublisher(ctx context.Context, id, subject string, topic graph.TopicInfo, qos graph.QoS, mgr *events.Manager) (*entity.Publisher, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.ErrShuttingDown
	}
	if _, exists := n.publishers[id]; exists {
		return nil, errors.ErrDuplicateEntity
	}

	desc := n.childDescriptor(graph.PublisherKind, topic, qos)
	pub, err := entity.NewPublisher(ctx, n.session, n.cache, mgr, desc, subject, n.shm, n.bufPool)
	if err != nil {
		return nil, err
	}
	n.publishers[id] = pub
	return pub, nil
}

// CreateSubscription declares a subscription named topic and adds it
// to the node's subscription set under id.
func (n *Node) CreateSubscription(ctx context.Context, id, subject string, topic graph.TopicInfo, qos graph.QoS, mgr *events.Manager) (*entity.Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.ErrShuttingDown
	}
	if _, exists := n.subscriptions[id]; exists {
		return nil, errors.ErrDuplicateEntity
	}

	desc := n.childDescriptor(graph.SubscriptionKind, topic, qos)
	sub, err := entity.NewSubscription(ctx, n.session, n.cache, mgr, desc, subject)
	if err != nil {
		return nil, err
	}
	n.subscriptions[id] = sub
	return sub, nil
}

// CreateService declares a service server named topic and adds it to
// the node's service set under id.
func (n *Node) CreateService(ctx context.Context, id, subject string, topic graph.TopicInfo, qos graph.QoS, mgr *events.Manager, handler entity.Handler) (*entity.Service, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.ErrShuttingDown
	}
	if _, exists := n.services[id]; exists {
		return nil, errors.ErrDuplicateEntity
	}

	desc := n.childDescriptor(graph.ServiceKind, topic, qos)
	svc, err := entity.NewService(ctx, n.session, n.cache, mgr, desc, subject, handler)
	if err != nil {
		return nil, err
	}
	n.services[id] = svc
	return svc, nil
}

// CreateClient declares a service client named topic and adds it to
// the node's client set under id.
func (n *Node) CreateClient(ctx context.Context, id, subject string, topic graph.TopicInfo, qos graph.QoS, mgr *events.Manager) (*entity.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, errors.ErrShuttingDown
	}
	if _, exists := n.clients[id]; exists {
		return nil, errors.ErrDuplicateEntity
	}

	desc := n.childDescriptor(graph.ClientKind, topic, qos)
	cli, err := entity.NewClient(ctx, n.session, n.cache, mgr, desc, subject)
	if err != nil {
		return nil, err
	}
	n.clients[id] = cli
	return cli, nil
}

// RemovePublisher closes and forgets the publisher registered under
// id, if any.
func (n *Node) RemovePublisher(ctx context.Context, id string) error {
	n.mu.Lock()
	pub, ok := n.publishers[id]
	delete(n.publishers, id)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return pub.Close(ctx)
}

// RemoveSubscription closes and forgets the subscription registered
// under id, if any.
func (n *Node) RemoveSubscription(ctx context.Context, id string) error {
	n.mu.Lock()
	sub, ok := n.subscriptions[id]
	delete(n.subscriptions, id)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.Close(ctx)
}

// RemoveService closes and forgets the service registered under id,
// if any.
func (n *Node) RemoveService(ctx context.Context, id string) error {
	n.mu.Lock()
	svc, ok := n.services[id]
	delete(n.services, id)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return svc.Close(ctx)
}

// RemoveClient closes and forgets the client registered under id, if
// any.
func (n *Node) RemoveClient(ctx context.Context, id string) error {
	n.mu.Lock()
	cli, ok := n.clients[id]
	delete(n.clients, id)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	return cli.Close(ctx)
}

// Shutdown closes every publisher, subscription, service, and client
// this node owns, then undeclares the node's own liveliness token.
// Idempotent.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	publishers := n.publishers
	subscriptions := n.subscriptions
	services := n.services
	clients := n.clients
	n.publishers = nil
	n.subscriptions = nil
	n.services = nil
	n.clients = nil
	n.mu.Unlock()

	var errs []error
	for _, pub := range publishers {
		if err := pub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sub := range subscriptions {
		if err := sub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, svc := range services {
		if err := svc.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, cli := range clients {
		if err := cli.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := n.token.Undeclare(ctx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
