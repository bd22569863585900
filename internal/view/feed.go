package view

import "sync"

// Feed fans out the names of views that changed. A subscriber whose buffer
// is full misses the change rather than blocking the publisher.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan string
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan string)}
}

// Subscribe returns a channel of changed view names and a function that
// ends the subscription.
func (f *Feed) Subscribe() (<-chan string, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	ch := make(chan string, 8)
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs, id)
			close(ch)
		})
	}
}

// Publish announces a change of name.
func (f *Feed) Publish(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- name:
		default:
		}
	}
}
