package progress

import "sync"

const subscriberBuffer = 16

// Notifier in-process fan out of completion events to the learner's own feed connections
type Notifier struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewNotifier .
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe register a feed for userID, call cancel to release it
func (n *Notifier) Subscribe(userID string) (events <-chan Event, cancel func()) {
	ch := make(chan Event, subscriberBuffer)

	n.mu.Lock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan Event]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[userID], ch)
			if len(n.subs[userID]) == 0 {
				delete(n.subs, userID)
			}
			close(ch)
		})
	}
}

// Publish deliver e to every feed of userID, slow feeds drop the event.
// Returns the number of feeds that received it.
func (n *Notifier) Publish(userID string, e Event) int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	delivered := 0
	for ch := range n.subs[userID] {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers number of open feeds across all users
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	total := 0
	for _, set := range n.subs {
		total += len(set)
	}
	return total
}
