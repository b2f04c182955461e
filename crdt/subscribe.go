package crdt

import "sync"

// subscription is one registered callback.
type subscription struct {
	id   uint64
	node NodeID
	deep bool
	cb   func()
}

// subscriptionRegistry is a flat list of subscriptions per node with a
// deep-flag. A batch-end scan (notify) walks up from each touched node
// and dedupes fired callbacks via a visited set so a batch of ops
// applied atomically produces exactly one callback per subscriber.
type subscriptionRegistry struct {
	mu     sync.Mutex
	nextID uint64
	byNode map[NodeID][]*subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{byNode: make(map[NodeID][]*subscription)}
}

func (r *subscriptionRegistry) subscribe(node NodeID, deep bool, cb func()) func() {
	r.mu.Lock()
	r.nextID++
	sub := &subscription{id: r.nextID, node: node, deep: deep, cb: cb}
	r.byNode[node] = append(r.byNode[node], sub)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.byNode[node]
		for i, s := range list {
			if s.id == sub.id {
				r.byNode[node] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// notify fires every subscriber whose node is in touched, or whose deep
// subscription covers an ancestor of a touched node. parentChain(id)
// must return id's ancestor chain including id itself.
func (r *subscriptionRegistry) notify(touched []NodeID, parentChain func(NodeID) []NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fired := make(map[uint64]bool)
	var toCall []func()

	for _, leaf := range touched {
		chain := parentChain(leaf)
		for depth, ancestor := range chain {
			for _, s := range r.byNode[ancestor] {
				if fired[s.id] {
					continue
				}
				// depth==0 means ancestor==leaf itself: shallow and deep
				// subscriptions both fire. depth>0 means ancestor is a
				// strict ancestor of the touched node: only deep
				// subscriptions fire.
				if depth == 0 || s.deep {
					fired[s.id] = true
					toCall = append(toCall, s.cb)
				}
			}
		}
	}

	for _, cb := range toCall {
		cb()
	}
}
