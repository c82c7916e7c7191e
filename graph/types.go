// Package graph models the distributed entity graph: the liveliness
// key-expression codec, the in-memory cache of every peer's declared
// entities, and the query surface used by callers and by the events
// manager's QoS-compatibility checks.
package graph

import "time"

// Kind identifies the role an entity plays in the graph.
type Kind string

const (
	NodeKind         Kind = "node"
	PublisherKind    Kind = "publisher"
	SubscriptionKind Kind = "subscription"
	ServiceKind      Kind = "service"
	ClientKind       Kind = "client"
)

// token returns the two-letter wire token for k, per §6's grammar.
func (k Kind) token() string {
	switch k {
	case NodeKind:
		return "NN"
	case PublisherKind:
		return "MP"
	case SubscriptionKind:
		return "MS"
	case ServiceKind:
		return "SS"
	case ClientKind:
		return "SC"
	default:
		return ""
	}
}

func kindFromToken(tok string) (Kind, bool) {
	switch tok {
	case "NN":
		return NodeKind, true
	case "MP":
		return PublisherKind, true
	case "MS":
		return SubscriptionKind, true
	case "SS":
		return ServiceKind, true
	case "SC":
		return ClientKind, true
	default:
		return "", false
	}
}

// NodeInfo carries the descriptive attributes of a node entity.
type NodeInfo struct {
	DomainID  uint32
	Namespace string
	NodeName  string
	Enclave   string
}

// TopicInfo carries the descriptive attributes of a topic-level entity
// (publisher, subscription, service, or client). The "topic" name also
// covers service names for service/client entities.
type TopicInfo struct {
	Name     string
	TypeName string
	TypeHash string
	QoS      QoS
}

// Reliability mirrors the fabric's QoS reliability policy.
type Reliability int

const (
	ReliabilityBestEffort Reliability = iota
	ReliabilityReliable
)

// Durability mirrors the fabric's QoS durability policy.
type Durability int

const (
	DurabilityVolatile Durability = iota
	DurabilityTransientLocal
)

// QoS is the compact set of quality-of-service attributes carried in
// every topic-level liveliness token.
type QoS struct {
	Reliability     Reliability
	Durability      Durability
	History         int // 0 = keep-last, 1 = keep-all
	Depth           int
	Deadline        time.Duration
	Lifespan        time.Duration
	Liveliness      int // 0 = automatic, 1 = manual-by-topic
	LivelinessLease time.Duration
}

// EntityDescriptor uniquely identifies a participant in the
// distributed graph. (ZID, ID) is stable for the entity's lifetime and
// never reused.
type EntityDescriptor struct {
	ZID  string
	NID  string
	ID   string
	Kind Kind

	NodeInfo  NodeInfo
	TopicInfo *TopicInfo // nil for NodeKind

	QoS QoS
}

// Key returns the (ZID, ID) pair that uniquely identifies this entity
// across the whole graph.
func (e EntityDescriptor) Key() (zid, id string) {
	return e.ZID, e.ID
}
