package graph

// TopicSummary describes one topic name's aggregate presence in the
// graph: how many publishers/subscriptions reference it, its type
// name, and (arbitrarily, the first-seen) QoS.
type TopicSummary struct {
	Name         string
	TypeName     string
	Publishers   int
	Subscriptions int
	QoS          QoS
}

// Nodes returns every known node entry's descriptor. Pending entries
// created only to park an orphaned topic-level child are excluded,
// since their NodeInfo was never actually declared.
func (c *Cache) Nodes() []NodeInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []NodeInfo
	for _, nodes := range c.zids {
		for _, entry := range nodes {
			if entry.Known {
				out = append(out, entry.Descriptor.NodeInfo)
			}
		}
	}
	return out
}

// TopicNames enumerates every topic name with at least one publisher
// or subscription, summarizing type and count.
func (c *Cache) TopicNames() []TopicSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make(map[string]*TopicSummary)
	collect := func(index map[string]map[localKey]EntityDescriptor, isPub bool) {
		for name, set := range index {
			s, ok := names[name]
			if !ok {
				s = &TopicSummary{Name: name}
				names[name] = s
			}
			for _, d := range set {
				if s.TypeName == "" && d.TopicInfo != nil {
					s.TypeName = d.TopicInfo.TypeName
					s.QoS = d.TopicInfo.QoS
				}
				if isPub {
					s.Publishers++
				} else {
					s.Subscriptions++
				}
			}
		}
	}
	collect(c.topicPublishers, true)
	collect(c.topicSubscriptions, false)

	out := make([]TopicSummary, 0, len(names))
	for _, s := range names {
		out = append(out, *s)
	}
	return out
}

// PublishersForTopic returns every publisher descriptor declared on
// name.
func (c *Cache) PublishersForTopic(name string) []EntityDescriptor {
	return c.snapshotIndex(c.topicPublishers, name)
}

// SubscriptionsForTopic returns every subscription descriptor declared
// on name.
func (c *Cache) SubscriptionsForTopic(name string) []EntityDescriptor {
	return c.snapshotIndex(c.topicSubscriptions, name)
}

// ServiceEndpoints returns the servers and clients declared on
// service name.
func (c *Cache) ServiceEndpoints(name string) (servers, clients []EntityDescriptor) {
	return c.snapshotIndex(c.serviceServers, name), c.snapshotIndex(c.serviceClients, name)
}

// CountPublishers is a cheap counting entry point distinct from
// PublishersForTopic, avoiding a slice allocation on hot paths.
func (c *Cache) CountPublishers(topic string) int {
	return c.countIndex(c.topicPublishers, topic)
}

// CountSubscriptions is the subscription-side counterpart to
// CountPublishers.
func (c *Cache) CountSubscriptions(topic string) int {
	return c.countIndex(c.topicSubscriptions, topic)
}

func (c *Cache) snapshotIndex(index map[string]map[localKey]EntityDescriptor, name string) []EntityDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := index[name]
	if !ok {
		return nil
	}
	out := make([]EntityDescriptor, 0, len(set))
	for _, d := range set {
		out = append(out, d)
	}
	return out
}

func (c *Cache) countIndex(index map[string]map[localKey]EntityDescriptor, name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(index[name])
}
