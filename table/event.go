package table

import (
	"reflect"

	"github.com/wippyai/bufmap"
)

// EventType identifies a table lifecycle event.
type EventType uint8

const (
	EventInserted EventType = iota
	EventUpdated
	EventRemoved
	EventRejected
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventInserted:
		return "inserted"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	case EventRejected:
		return "rejected"
	case EventReleased:
		return "released"
	}
	return "unknown"
}

// Event describes a change to the table's contents.
// Index is -1 for events that are not tied to a bucket.
// Depth is 0 for the primary slot and n for the n-th chained entry.
// An EventReleased with a zero Key means only the handle was released,
// because an update replaced it.
type Event struct {
	Key    bufmap.Key
	Handle bufmap.Handle
	Index  int
	Depth  int
	Type   EventType
}

// Observer receives notifications about table events.
type Observer interface {
	OnTableEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnTableEvent calls f(e).
func (f ObserverFunc) OnTableEvent(e Event) {
	f(e)
}

// Subscribe adds an observer for table events.
func (t *Table) Subscribe(o Observer) {
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer. Observers are matched with ==; values
// of uncomparable types such as ObserverFunc are never matched, so register
// a pointer type for observers that need to be removed.
func (t *Table) Unsubscribe(o Observer) {
	if o == nil || !reflect.TypeOf(o).Comparable() {
		return
	}
	for i, obs := range t.observers {
		if reflect.TypeOf(obs) == reflect.TypeOf(o) && obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	for _, o := range t.observers {
		o.OnTableEvent(e)
	}
}
