package engine

import "fmt"

// EventKind identifies what a committed call did.
type EventKind uint8

const (
	EventFileCreated EventKind = iota + 1
	EventDirectoryCreated
	EventFileUpdated
	EventEntryDeleted
	EventNamespaceCreated
	EventNamespaceDropped
)

var eventKindNames = map[EventKind]string{
	EventFileCreated:      "file_created",
	EventDirectoryCreated: "directory_created",
	EventFileUpdated:      "file_updated",
	EventEntryDeleted:     "entry_deleted",
	EventNamespaceCreated: "namespace_created",
	EventNamespaceDropped: "namespace_dropped",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(text []byte) error {
	for kind, name := range eventKindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", text)
}

// Event is the notification published after a mutating call commits.
//
// Events are advisory. Nothing in the engine depends on a subscriber seeing
// them, and the same state is always available through the read operations.
type Event struct {
	Kind      EventKind `cbor:"1,keyasint" json:"kind"`
	Namespace Ref       `cbor:"2,keyasint" json:"namespace"`
	Caller    Identity  `cbor:"3,keyasint" json:"caller"`
	EntryID   uint64    `cbor:"4,keyasint" json:"entry_id"`
	Timestamp uint64    `cbor:"5,keyasint" json:"timestamp"`

	// Offset and Length describe the body range touched by a write.
	Offset uint64 `cbor:"6,keyasint,omitempty" json:"offset,omitempty"`
	Length uint64 `cbor:"7,keyasint,omitempty" json:"length,omitempty"`

	// Target is set for directory creation.
	Target Ref `cbor:"8,keyasint" json:"target"`
}

// Notifier receives committed events.
//
// Notify runs while the Host still serializes calls, so events arrive in
// commit order. Implementations must not call back into the Host.
type Notifier interface {
	Notify(e Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(e Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }

type noopNotifier struct{}

func (noopNotifier) Notify(Event) {}
