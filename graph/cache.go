package graph

import (
	"log/slog"
	"sync"
)

// MatchEvent names the kind of QoS/matching event a Cache mutation can
// raise against a locally registered entity.
type MatchEvent int

const (
	SubscriptionMatched MatchEvent = iota
	PublicationMatched
	RequestedQoSIncompatible
	OfferedQoSIncompatible
	Unmatched
)

// MatchObserver is implemented by local entities (see package entity)
// that register themselves with a Cache so matching remote entities
// raise events on their events manager. The graph package never
// imports entity or events; it only calls back through this interface,
// keeping the dependency one-directional.
type MatchObserver interface {
	OnMatch(event MatchEvent, countChange int, remote EntityDescriptor)
}

// NodeEntry is one node's worth of graph state: its own descriptor
// plus its four submappings of topic-level entities, each keyed by id.
type NodeEntry struct {
	Descriptor EntityDescriptor
	Known      bool // false for a pending entry created for an orphan child

	Publishers    map[string]EntityDescriptor
	Subscriptions map[string]EntityDescriptor
	Services      map[string]EntityDescriptor
	Clients       map[string]EntityDescriptor
}

func newNodeEntry() *NodeEntry {
	return &NodeEntry{
		Publishers:    make(map[string]EntityDescriptor),
		Subscriptions: make(map[string]EntityDescriptor),
		Services:      make(map[string]EntityDescriptor),
		Clients:       make(map[string]EntityDescriptor),
	}
}

type localEntry struct {
	desc     EntityDescriptor
	observer MatchObserver
	// matched/incompatible remembers which remote (zid,id) pairs this
	// local entity has already raised a match or incompatibility event
	// for, so a duplicate parse_put of the same remote never re-raises.
	matched      map[string]bool
	incompatible map[string]MatchEvent
}

// Cache is the mutable zid -> {nid -> *NodeEntry} graph, plus
// topic/service indices and the set of locally registered entities
// used for QoS-compatibility matching.
type Cache struct {
	mu   sync.RWMutex
	zids map[string]map[string]*NodeEntry
	log  *slog.Logger

	// topic/service indices: name -> set of (zid,id) descriptors.
	topicPublishers    map[string]map[localKey]EntityDescriptor
	topicSubscriptions map[string]map[localKey]EntityDescriptor
	serviceServers     map[string]map[localKey]EntityDescriptor
	serviceClients     map[string]map[localKey]EntityDescriptor

	locals map[localKey]*localEntry
}

type localKey struct {
	zid string
	id  string
}

// New returns an empty Cache seeded with no entries. Callers typically
// feed it the local session's own liveliness declarations the same
// way any remote peer's are fed, per spec §3 ("no special-casing").
func New(log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		zids:                make(map[string]map[string]*NodeEntry),
		log:                 log,
		topicPublishers:    make(map[string]map[localKey]EntityDescriptor),
		topicSubscriptions: make(map[string]map[localKey]EntityDescriptor),
		serviceServers:     make(map[string]map[localKey]EntityDescriptor),
		serviceClients:     make(map[string]map[localKey]EntityDescriptor),
		locals:             make(map[localKey]*localEntry),
	}
}

// RegisterLocal records a local entity so remote matches raise events
// on observer. Call UnregisterLocal on teardown.
func (c *Cache) RegisterLocal(desc EntityDescriptor, observer MatchObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locals[localKey{desc.ZID, desc.ID}] = &localEntry{
		desc:         desc,
		observer:     observer,
		matched:      make(map[string]bool),
		incompatible: make(map[string]MatchEvent),
	}
}

// UnregisterLocal removes a previously registered local entity.
func (c *Cache) UnregisterLocal(zid, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locals, localKey{zid, id})
}

// ParsePut decodes keyExpr and merges the described entity into the
// cache. Malformed keys are logged and ignored, never returned as an
// error, per spec §4.5 ("both must be total in the presence of
// malformed keys").
func (c *Cache) ParsePut(keyExpr string) {
	desc, ok := Decode(keyExpr)
	if !ok {
		c.log.Warn("graph: ignoring malformed liveliness key on put", "key_expr", keyExpr)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nodes, ok := c.zids[desc.ZID]
	if !ok {
		nodes = make(map[string]*NodeEntry)
		c.zids[desc.ZID] = nodes
	}

	entry, ok := nodes[desc.NID]
	if !ok {
		entry = newNodeEntry()
		nodes[desc.NID] = entry
	}

	if desc.Kind == NodeKind {
		entry.Descriptor = desc
		entry.Known = true
		c.matchAgainstLocals(desc)
		return
	}

	// Topic-level entity: ensure the parent node entry exists (it now
	// does, possibly pending) before inserting the child.
	switch desc.Kind {
	case PublisherKind:
		entry.Publishers[desc.ID] = desc
		c.indexAdd(c.topicPublishers, desc.TopicInfo.Name, desc)
	case SubscriptionKind:
		entry.Subscriptions[desc.ID] = desc
		c.indexAdd(c.topicSubscriptions, desc.TopicInfo.Name, desc)
	case ServiceKind:
		entry.Services[desc.ID] = desc
		c.indexAdd(c.serviceServers, desc.TopicInfo.Name, desc)
	case ClientKind:
		entry.Clients[desc.ID] = desc
		c.indexAdd(c.serviceClients, desc.TopicInfo.Name, desc)
	}

	c.matchAgainstLocals(desc)
}

// ParseDel decodes keyExpr and removes the described entity. When the
// last topic-level entity under a node disappears the node entry is
// kept; when a node entry itself disappears all its children are
// dropped and UNMATCHED is raised on any local peer still tracking
// them.
func (c *Cache) ParseDel(keyExpr string) {
	desc, ok := Decode(keyExpr)
	if !ok {
		c.log.Warn("graph: ignoring malformed liveliness key on delete", "key_expr", keyExpr)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	nodes, ok := c.zids[desc.ZID]
	if !ok {
		return
	}
	entry, ok := nodes[desc.NID]
	if !ok {
		return
	}

	if desc.Kind == NodeKind {
		c.dropNodeChildren(entry)
		delete(nodes, desc.NID)
		if len(nodes) == 0 {
			delete(c.zids, desc.ZID)
		}
		return
	}

	switch desc.Kind {
	case PublisherKind:
		delete(entry.Publishers, desc.ID)
		c.indexRemove(c.topicPublishers, desc.TopicInfo.Name, desc.ZID, desc.ID)
	case SubscriptionKind:
		delete(entry.Subscriptions, desc.ID)
		c.indexRemove(c.topicSubscriptions, desc.TopicInfo.Name, desc.ZID, desc.ID)
	case ServiceKind:
		delete(entry.Services, desc.ID)
		c.indexRemove(c.serviceServers, desc.TopicInfo.Name, desc.ZID, desc.ID)
	case ClientKind:
		delete(entry.Clients, desc.ID)
		c.indexRemove(c.serviceClients, desc.TopicInfo.Name, desc.ZID, desc.ID)
	}

	c.raiseUnmatched(desc)
}

func (c *Cache) dropNodeChildren(entry *NodeEntry) {
	for _, d := range entry.Publishers {
		c.indexRemove(c.topicPublishers, d.TopicInfo.Name, d.ZID, d.ID)
		c.raiseUnmatched(d)
	}
	for _, d := range entry.Subscriptions {
		c.indexRemove(c.topicSubscriptions, d.TopicInfo.Name, d.ZID, d.ID)
		c.raiseUnmatched(d)
	}
	for _, d := range entry.Services {
		c.indexRemove(c.serviceServers, d.TopicInfo.Name, d.ZID, d.ID)
		c.raiseUnmatched(d)
	}
	for _, d := range entry.Clients {
		c.indexRemove(c.serviceClients, d.TopicInfo.Name, d.ZID, d.ID)
		c.raiseUnmatched(d)
	}
}

func (c *Cache) indexAdd(index map[string]map[localKey]EntityDescriptor, name string, desc EntityDescriptor) {
	set, ok := index[name]
	if !ok {
		set = make(map[localKey]EntityDescriptor)
		index[name] = set
	}
	set[localKey{desc.ZID, desc.ID}] = desc
}

func (c *Cache) indexRemove(index map[string]map[localKey]EntityDescriptor, name, zid, id string) {
	set, ok := index[name]
	if !ok {
		return
	}
	delete(set, localKey{zid, id})
	if len(set) == 0 {
		delete(index, name)
	}
}

// matchAgainstLocals checks desc against every registered local
// entity of the complementary kind on the same topic/service name and
// raises matched or incompatible-QoS events as appropriate.
func (c *Cache) matchAgainstLocals(desc EntityDescriptor) {
	if desc.Kind == NodeKind {
		return
	}
	for key, local := range c.locals {
		if key == (localKey{desc.ZID, desc.ID}) {
			continue // never match against itself
		}
		if !complementaryKinds(local.desc.Kind, desc.Kind) {
			continue
		}
		if local.desc.TopicInfo == nil || desc.TopicInfo == nil ||
			local.desc.TopicInfo.Name != desc.TopicInfo.Name {
			continue
		}

		remoteKey := desc.ZID + "/" + desc.ID
		if local.matched[remoteKey] {
			continue // already accounted for this remote
		}

		compatible, event := checkQoSCompatibility(local.desc, desc)
		local.matched[remoteKey] = true
		if compatible {
			matchEvent := SubscriptionMatched
			if local.desc.Kind == PublisherKind {
				matchEvent = PublicationMatched
			}
			local.observer.OnMatch(matchEvent, 1, desc)
		} else if _, already := local.incompatible[remoteKey]; !already {
			local.incompatible[remoteKey] = event
			local.observer.OnMatch(event, 1, desc)
		}
	}
}

func (c *Cache) raiseUnmatched(desc EntityDescriptor) {
	if desc.Kind == NodeKind {
		return
	}
	remoteKey := desc.ZID + "/" + desc.ID
	for key, local := range c.locals {
		if key == (localKey{desc.ZID, desc.ID}) {
			continue
		}
		if !complementaryKinds(local.desc.Kind, desc.Kind) {
			continue
		}
		if local.desc.TopicInfo == nil || desc.TopicInfo == nil ||
			local.desc.TopicInfo.Name != desc.TopicInfo.Name {
			continue
		}
		if local.matched[remoteKey] {
			delete(local.matched, remoteKey)
			delete(local.incompatible, remoteKey)
			local.observer.OnMatch(Unmatched, -1, desc)
		}
	}
}

// complementaryKinds reports whether a and b form a matchable pair: a
// local subscription matches a remote publisher and vice versa; a
// local service matches a remote client and vice versa.
func complementaryKinds(a, b Kind) bool {
	switch a {
	case SubscriptionKind:
		return b == PublisherKind
	case PublisherKind:
		return b == SubscriptionKind
	case ServiceKind:
		return b == ClientKind
	case ClientKind:
		return b == ServiceKind
	default:
		return false
	}
}

// checkQoSCompatibility applies the design-level rules from spec §4.5:
// best-effort is compatible with any offered reliability, reliable
// requires reliable; volatile durability is compatible with any,
// transient-local requires transient-local; deadline/liveliness/
// lifespan require the requested period to be >= the offered period.
// The requester/offerer roles are picked by Kind, not by which side is
// local: Subscription/Client is always the requester, Publisher/
// Service is always the offerer, regardless of which one called
// RegisterLocal (every entity kind registers itself as "local").
func checkQoSCompatibility(local, remote EntityDescriptor) (bool, MatchEvent) {
	var requested, offered QoS
	if local.Kind == SubscriptionKind || local.Kind == ClientKind {
		requested, offered = local.QoS, remote.QoS
	} else {
		requested, offered = remote.QoS, local.QoS
	}

	if requested.Reliability == ReliabilityReliable && offered.Reliability != ReliabilityReliable {
		return false, eventFor(local.Kind)
	}
	if requested.Durability == DurabilityTransientLocal && offered.Durability != DurabilityTransientLocal {
		return false, eventFor(local.Kind)
	}
	if requested.Deadline > 0 && offered.Deadline > 0 && requested.Deadline < offered.Deadline {
		return false, eventFor(local.Kind)
	}
	if requested.Lifespan > 0 && offered.Lifespan > 0 && requested.Lifespan < offered.Lifespan {
		return false, eventFor(local.Kind)
	}
	if requested.LivelinessLease > 0 && offered.LivelinessLease > 0 && requested.LivelinessLease < offered.LivelinessLease {
		return false, eventFor(local.Kind)
	}
	return true, 0
}

// eventFor picks which side's incompatibility event fires: the local
// subscriber/client raises REQUESTED_QOS_INCOMPATIBLE, the local
// publisher/server raises OFFERED_QOS_INCOMPATIBLE.
func eventFor(localKind Kind) MatchEvent {
	switch localKind {
	case SubscriptionKind, ClientKind:
		return RequestedQoSIncompatible
	default:
		return OfferedQoSIncompatible
	}
}
