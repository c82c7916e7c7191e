// Package entity implements the four topic-level participant types a
// Node owns: publishers, subscriptions, services, and clients. Each
// type declares a fabric publication/subscription/queryable, a
// liveliness token under its graph.EntityDescriptor's key expression,
// and registers itself with the shared graph.Cache as a
// graph.MatchObserver so remote QoS-compatible peers raise events on
// its own events.Manager without graph ever importing this package.
package entity

import (
	"crypto/sha256"

	"github.com/codebot/rmw-zenoh/events"
	"github.com/codebot/rmw-zenoh/graph"
)

// deriveGID computes an entity's source_gid deterministically from its
// (zid, id) pair: a SHA-256 hash of the two fields truncated to 16
// bytes. Two entities with the same (zid, id) always derive the same
// GID; two different entities practically never collide.
func deriveGID(zid, id string) [16]byte {
	h := sha256.New()
	h.Write([]byte(zid))
	h.Write([]byte{0}) // separator so ("ab","c") and ("a","bc") hash differently
	h.Write([]byte(id))
	sum := h.Sum(nil)

	var gid [16]byte
	copy(gid[:], sum[:16])
	return gid
}

// translateMatchEvent maps a graph match event onto the events.Kind it
// should raise for an entity of ownKind. Unmatched is the one case
// that depends on which side of the match ownKind sits on: a
// publisher/server's count lives under PublicationMatched, a
// subscription/client's under SubscriptionMatched.
func translateMatchEvent(ownKind graph.Kind, event graph.MatchEvent) events.Kind {
	switch event {
	case graph.SubscriptionMatched:
		return events.SubscriptionMatched
	case graph.PublicationMatched:
		return events.PublicationMatched
	case graph.RequestedQoSIncompatible:
		return events.RequestedQoSIncompatible
	case graph.OfferedQoSIncompatible:
		return events.OfferedQoSIncompatible
	case graph.Unmatched:
		if ownKind == graph.PublisherKind || ownKind == graph.ServiceKind {
			return events.PublicationMatched
		}
		return events.SubscriptionMatched
	default:
		return events.SubscriptionMatched
	}
}

func historyDepth(qos graph.QoS) int {
	if qos.Depth <= 0 {
		return 1
	}
	return qos.Depth
}
