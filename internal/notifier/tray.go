package notifier

import (
	"context"
	"sync"
)

// Tray is an in-memory Display. Notifications sharing a tag replace each other, so repeated alerts of one
// emergency stay a single entry.
type Tray struct {
	mu    sync.Mutex
	order []string
	byTag map[string]Notification
	shown int
}

// NewTray creates an empty tray.
func NewTray() *Tray {
	return &Tray{byTag: map[string]Notification{}}
}

// Show adds n or replaces the visible notification with the same tag.
func (t *Tray) Show(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byTag[n.Tag]; !ok {
		t.order = append(t.order, n.Tag)
	}
	t.byTag[n.Tag] = n
	t.shown++
	return nil
}

// Close removes the notification with given tag.
func (t *Tray) Close(tag string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byTag[tag]; !ok {
		return false
	}
	delete(t.byTag, tag)
	for i, existing := range t.order {
		if existing == tag {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Visible returns the notifications in the order they first appeared.
func (t *Tray) Visible() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Notification, 0, len(t.order))
	for _, tag := range t.order {
		out = append(out, t.byTag[tag])
	}
	return out
}

// Shown counts every Show call, coalesced or not.
func (t *Tray) Shown() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown
}
