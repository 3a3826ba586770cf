// Package engine implements the cellfs storage engine on top of a cell.Backend.
//
// A Namespace is an independent entry space: its own id allocator, its own
// enumeration index and its own cells. Entries are either files, whose bodies
// are split into 32-byte clusters, or directories, whose only payload is a
// reference to another Namespace. There is no containment between namespaces;
// a tree is a chain of references that callers follow explicitly (see Walker).
//
// Every field of every entry lives at a deterministic cell address derived
// from (namespace, field tag, entry id, sub-index), so nothing needs an
// allocation table and any field is reachable in O(1) from the id alone.
//
// All namespaces of a process share one Host, which plays the part of the
// execution environment: it serializes mutating calls, runs each of them in a
// single backend transaction, charges cell operations against a per-call
// budget and publishes an Event for every committed mutation.
package engine
