package engine

import (
	"context"
	"fmt"

	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/cell"
)

// Entry is the projection of one entry returned by the read operations.
//
// For an absent id every field except ID is zero: Exists is false, Name and
// Body are empty, Target is the null reference.
type Entry struct {
	ID        uint64   `json:"id"`
	Kind      Kind     `json:"kind"`
	Owner     Identity `json:"owner"`
	Name      []byte   `json:"name"`
	Body      []byte   `json:"body,omitempty"`
	Timestamp uint64   `json:"timestamp"`
	Exists    bool     `json:"exists"`
	Size      uint64   `json:"size"`
	Target    Ref      `json:"target"`
}

// Namespace is one independent entry space.
//
// A Namespace value is a handle: all state lives in cells salted with its
// Ref, so two handles for the same Ref are interchangeable. Obtain handles
// from Host.CreateNamespace or Host.Namespace.
type Namespace struct {
	host  *Host
	ref   Ref
	slots slots
	index index
}

// Ref returns the namespace reference.
func (ns *Namespace) Ref() Ref {
	return ns.ref
}

// ============================================================================
// Mutating Operations
// ============================================================================

// CreateFile creates a file at the next free id and returns the id.
//
// The body is written at offset; bytes before offset read as zero.
//
// Errors:
//   - ErrNameTooLong: name longer than MaxNameLength
//   - ErrSizeOverflow: offset+len(body) exceeds MaxFileSize
func (ns *Namespace) CreateFile(cc CallContext, name, body []byte, offset uint64) (uint64, error) {
	const op = "CreateFile"
	var id uint64

	err := ns.update(cc, op, func(c *call) error {
		if err := checkFileArgs(op, 0, name, body, offset); err != nil {
			return err
		}
		var err error
		if id, err = ns.allocate(c.tx); err != nil {
			return err
		}
		return ns.createFile(c, op, id, name, body, offset)
	})
	return id, err
}

// CreateFileAt creates a file at an explicit id.
//
// Errors: as CreateFile, plus ErrAlreadyExists if id is taken.
func (ns *Namespace) CreateFileAt(cc CallContext, id uint64, name, body []byte, offset uint64) error {
	const op = "CreateFileAt"
	return ns.update(cc, op, func(c *call) error {
		return ns.createFile(c, op, id, name, body, offset)
	})
}

// CreateDirectory creates a directory at the next free id, linking it to the
// target namespace, and returns the id.
//
// The target does not have to be registered on this host; following it is
// the walker's concern.
//
// Errors:
//   - ErrInvalidTarget: target is null or this namespace
//   - ErrNameTooLong: name longer than MaxNameLength
func (ns *Namespace) CreateDirectory(cc CallContext, name []byte, target Ref) (uint64, error) {
	const op = "CreateDirectory"
	var id uint64

	err := ns.update(cc, op, func(c *call) error {
		if err := ns.checkDirectoryArgs(op, 0, name, target); err != nil {
			return err
		}
		var err error
		if id, err = ns.allocate(c.tx); err != nil {
			return err
		}
		return ns.createDirectory(c, op, id, name, target)
	})
	return id, err
}

// CreateDirectoryAt creates a directory at an explicit id.
func (ns *Namespace) CreateDirectoryAt(cc CallContext, id uint64, name []byte, target Ref) error {
	const op = "CreateDirectoryAt"
	return ns.update(cc, op, func(c *call) error {
		return ns.createDirectory(c, op, id, name, target)
	})
}

// UpdateFile writes body at offset into an existing file owned by the caller.
//
// A write at offset 0 sets the size to len(body); any other write extends
// the size to cover it and never shrinks it.
//
// Errors:
//   - ErrNotFound, ErrNotOwner, ErrTypeMismatch
//   - ErrSizeOverflow: offset+len(body) exceeds MaxFileSize
func (ns *Namespace) UpdateFile(cc CallContext, id uint64, body []byte, offset uint64) error {
	const op = "UpdateFile"
	return ns.update(cc, op, func(c *call) error {
		m, err := loadMetadata(c.tx, ns.slots, id)
		if err != nil {
			return err
		}
		return ns.updateFile(c, op, id, m, body, offset)
	})
}

// WriteFile creates the file at id with an empty name if it does not exist,
// and updates it otherwise.
func (ns *Namespace) WriteFile(cc CallContext, id uint64, offset uint64, body []byte) error {
	const op = "WriteFile"
	return ns.update(cc, op, func(c *call) error {
		m, err := loadMetadata(c.tx, ns.slots, id)
		if err != nil {
			return err
		}
		if !m.Exists() {
			return ns.createFile(c, op, id, nil, body, offset)
		}
		return ns.updateFile(c, op, id, m, body, offset)
	})
}

// DeleteEntry removes an entry owned by the caller.
//
// Every cell of the entry is zeroed (metadata, owner, name, body clusters
// up to the declared size, directory target) and the id leaves the
// enumeration index. The id can then be reused by an explicit-id create; the
// allocator never hands it out again.
//
// Errors: ErrNotFound, ErrNotOwner.
func (ns *Namespace) DeleteEntry(cc CallContext, id uint64) error {
	const op = "DeleteEntry"
	return ns.update(cc, op, func(c *call) error {
		// ====================================================================
		// Step 1: Preconditions
		// ====================================================================

		m, err := loadMetadata(c.tx, ns.slots, id)
		if err != nil {
			return err
		}
		if !m.Exists() {
			return newError(op, ErrNotFound, id, "entry does not exist")
		}
		if err := ns.checkOwner(c, op, id); err != nil {
			return err
		}

		// ====================================================================
		// Step 2: Zero every cell of the entry
		// ====================================================================

		if err := clearName(c.tx, ns.slots, id); err != nil {
			return err
		}
		if m.Kind == KindFile {
			if err := clearTail(c.tx, ns.slots, id, 0, m.Size); err != nil {
				return err
			}
		}
		if m.Kind == KindDirectory {
			if err := c.tx.Store(ns.slots.target(id), cell.ZeroWord); err != nil {
				return err
			}
		}
		if err := c.tx.Store(ns.slots.owner(id), cell.ZeroWord); err != nil {
			return err
		}
		if err := c.tx.Store(ns.slots.metadata(id), cell.ZeroWord); err != nil {
			return err
		}

		// ====================================================================
		// Step 3: Drop the id from the enumeration index
		// ====================================================================

		found, err := ns.index.remove(c.tx, uint64Word(id))
		if err != nil {
			return err
		}
		if !found {
			logger.Warn("Namespace %s: entry %d was missing from the index", ns.ref, id)
		}

		c.emit(Event{Kind: EventEntryDeleted, Namespace: ns.ref, EntryID: id})
		return nil
	})
}

// ============================================================================
// Read Operations
// ============================================================================

// GetEntry returns the full projection of id, including the whole body.
// An absent id yields a zero Entry with Exists false, never an error.
func (ns *Namespace) GetEntry(ctx context.Context, id uint64) (Entry, error) {
	return ns.getEntry(ctx, "GetEntry", id, true, 0, 0)
}

// GetEntryPage is GetEntry with the body limited to maxLength bytes from
// offset. maxLength 0 means to the end of the body.
func (ns *Namespace) GetEntryPage(ctx context.Context, id, offset, maxLength uint64) (Entry, error) {
	return ns.getEntry(ctx, "GetEntryPage", id, true, offset, maxLength)
}

// Stat is GetEntry without the body.
func (ns *Namespace) Stat(ctx context.Context, id uint64) (Entry, error) {
	return ns.getEntry(ctx, "Stat", id, false, 0, 0)
}

// GetEntries returns the ids of every existing entry. The order is not
// stable across deletions.
func (ns *Namespace) GetEntries(ctx context.Context) ([]uint64, error) {
	return ns.getEntries(ctx, "GetEntries", 0, 0)
}

// GetEntriesPage returns up to maxCount ids starting at position start of
// the enumeration. A start past the end yields an empty slice; maxCount 0
// means to the end.
func (ns *Namespace) GetEntriesPage(ctx context.Context, start, maxCount uint64) ([]uint64, error) {
	return ns.getEntries(ctx, "GetEntriesPage", start, maxCount)
}

// GetEntryCount returns the number of existing entries.
func (ns *Namespace) GetEntryCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := ns.host.view(ctx, "GetEntryCount", func(tx cell.Store) error {
		var err error
		n, err = ns.index.length(tx)
		return err
	})
	return n, err
}

// Exists reports whether id is present.
func (ns *Namespace) Exists(ctx context.Context, id uint64) (bool, error) {
	var exists bool
	err := ns.host.view(ctx, "Exists", func(tx cell.Store) error {
		m, err := loadMetadata(tx, ns.slots, id)
		exists = m.Exists()
		return err
	})
	return exists, err
}

// ReadFile returns up to length body bytes of file id starting at offset.
// Reads at or past the end are empty; length 0, or a length reaching past
// the end, returns the rest of the body.
//
// Errors: ErrNotFound, ErrTypeMismatch.
func (ns *Namespace) ReadFile(ctx context.Context, id, offset, length uint64) ([]byte, error) {
	const op = "ReadFile"
	var body []byte
	err := ns.host.view(ctx, op, func(tx cell.Store) error {
		m, err := loadMetadata(tx, ns.slots, id)
		if err != nil {
			return err
		}
		if !m.Exists() {
			return newError(op, ErrNotFound, id, "entry does not exist")
		}
		if m.Kind != KindFile {
			return newError(op, ErrTypeMismatch, id, "entry is a %s", m.Kind)
		}
		body, err = readClusters(tx, ns.slots, id, offset, length, m.Size)
		return err
	})
	return body, err
}

// ReadCluster returns the raw 32-byte cluster index of id. Clusters that
// were never written, including those of absent entries, are the zero word.
func (ns *Namespace) ReadCluster(ctx context.Context, id, index uint64) (cell.Word, error) {
	var w cell.Word
	err := ns.host.view(ctx, "ReadCluster", func(tx cell.Store) error {
		var err error
		w, err = readSingleCluster(tx, ns.slots, id, index)
		return err
	})
	return w, err
}

// ============================================================================
// Internals
// ============================================================================

func checkFileArgs(op string, id uint64, name, body []byte, offset uint64) error {
	if err := checkName(op, id, name); err != nil {
		return err
	}
	if _, ok := sizeAfterWrite(0, offset, len(body)); !ok {
		return newError(op, ErrSizeOverflow, id, "offset %d + %d bytes exceeds %d", offset, len(body), MaxFileSize)
	}
	return nil
}

func (ns *Namespace) checkDirectoryArgs(op string, id uint64, name []byte, target Ref) error {
	if target.IsNull() {
		return newError(op, ErrInvalidTarget, id, "target is the null reference")
	}
	if target == ns.ref {
		return newError(op, ErrInvalidTarget, id, "target is the namespace itself")
	}
	return checkName(op, id, name)
}

func (ns *Namespace) checkOwner(c *call, op string, id uint64) error {
	w, err := c.tx.Load(ns.slots.owner(id))
	if err != nil {
		return err
	}
	if owner := identityFromWord(w); owner != c.caller {
		return newError(op, ErrNotOwner, id, "entry belongs to %s", owner)
	}
	return nil
}

// update runs fn as a mutating call on this namespace. A handle whose
// namespace has been dropped fails with ErrNotFound before fn runs.
func (ns *Namespace) update(cc CallContext, op string, fn func(c *call) error) error {
	return ns.host.update(cc, op, func(c *call) error {
		w, err := c.tx.Load(ns.host.registrations.registration(ns.ref))
		if err != nil {
			return err
		}
		if w.IsZero() {
			return &Error{Op: op, Code: ErrNotFound, Message: fmt.Sprintf("namespace %s is not registered", ns.ref)}
		}
		return fn(c)
	})
}

// allocate returns the next free id and advances the counter past it. The
// counter only moves forward; ids taken by explicit creates are skipped.
func (ns *Namespace) allocate(tx cell.Store) (uint64, error) {
	w, err := tx.Load(ns.slots.counter())
	if err != nil {
		return 0, err
	}

	id := wordUint64(w)
	for {
		m, err := loadMetadata(tx, ns.slots, id)
		if err != nil {
			return 0, err
		}
		if !m.Exists() {
			break
		}
		id++
	}

	if err := tx.Store(ns.slots.counter(), uint64Word(id+1)); err != nil {
		return 0, err
	}
	return id, nil
}

// createEntry records the cells every new entry has and indexes it.
func (ns *Namespace) createEntry(c *call, id uint64, name []byte, m Metadata) error {
	if err := writeName(c.tx, ns.slots, id, name); err != nil {
		return err
	}
	if err := storeMetadata(c.tx, ns.slots, id, m); err != nil {
		return err
	}
	if err := c.tx.Store(ns.slots.owner(id), c.caller.word()); err != nil {
		return err
	}
	return ns.index.append(c.tx, uint64Word(id))
}

func (ns *Namespace) createFile(c *call, op string, id uint64, name, body []byte, offset uint64) error {
	// ========================================================================
	// Step 1: Preconditions
	// ========================================================================

	if err := checkFileArgs(op, id, name, body, offset); err != nil {
		return err
	}
	size, _ := sizeAfterWrite(0, offset, len(body))

	m, err := loadMetadata(c.tx, ns.slots, id)
	if err != nil {
		return err
	}
	if m.Exists() {
		return newError(op, ErrAlreadyExists, id, "entry already exists")
	}

	// ========================================================================
	// Step 2: Body, then the entry cells
	// ========================================================================

	if err := writeClusters(c.tx, ns.slots, id, body, offset); err != nil {
		return err
	}
	if err := ns.createEntry(c, id, name, Metadata{Kind: KindFile, Timestamp: c.now, Size: size}); err != nil {
		return err
	}

	c.emit(Event{
		Kind:      EventFileCreated,
		Namespace: ns.ref,
		EntryID:   id,
		Offset:    offset,
		Length:    uint64(len(body)),
	})
	return nil
}

func (ns *Namespace) createDirectory(c *call, op string, id uint64, name []byte, target Ref) error {
	if err := ns.checkDirectoryArgs(op, id, name, target); err != nil {
		return err
	}

	m, err := loadMetadata(c.tx, ns.slots, id)
	if err != nil {
		return err
	}
	if m.Exists() {
		return newError(op, ErrAlreadyExists, id, "entry already exists")
	}

	if err := c.tx.Store(ns.slots.target(id), target.word()); err != nil {
		return err
	}
	if err := ns.createEntry(c, id, name, Metadata{Kind: KindDirectory, Timestamp: c.now}); err != nil {
		return err
	}

	c.emit(Event{Kind: EventDirectoryCreated, Namespace: ns.ref, EntryID: id, Target: target})
	return nil
}

func (ns *Namespace) updateFile(c *call, op string, id uint64, m Metadata, body []byte, offset uint64) error {
	// ========================================================================
	// Step 1: Preconditions
	// ========================================================================

	if !m.Exists() {
		return newError(op, ErrNotFound, id, "entry does not exist")
	}
	if err := ns.checkOwner(c, op, id); err != nil {
		return err
	}
	if m.Kind != KindFile {
		return newError(op, ErrTypeMismatch, id, "entry is a %s", m.Kind)
	}
	size, ok := sizeAfterWrite(m.Size, offset, len(body))
	if !ok {
		return newError(op, ErrSizeOverflow, id, "offset %d + %d bytes exceeds %d", offset, len(body), MaxFileSize)
	}

	// ========================================================================
	// Step 2: Write, truncate, restamp
	// ========================================================================

	if err := writeClusters(c.tx, ns.slots, id, body, offset); err != nil {
		return err
	}
	// Bytes past the size stay zero so a later sparse write never exposes
	// truncated content.
	if err := clearTail(c.tx, ns.slots, id, size, m.Size); err != nil {
		return err
	}
	if err := storeMetadata(c.tx, ns.slots, id, Metadata{Kind: KindFile, Timestamp: c.now, Size: size}); err != nil {
		return err
	}

	c.emit(Event{
		Kind:      EventFileUpdated,
		Namespace: ns.ref,
		EntryID:   id,
		Offset:    offset,
		Length:    uint64(len(body)),
	})
	return nil
}

func (ns *Namespace) getEntry(ctx context.Context, op string, id uint64, withBody bool, offset, length uint64) (Entry, error) {
	e := Entry{ID: id, Name: []byte{}, Body: []byte{}}
	err := ns.host.view(ctx, op, func(tx cell.Store) error {
		m, err := loadMetadata(tx, ns.slots, id)
		if err != nil || !m.Exists() {
			return err
		}
		e.Kind, e.Timestamp, e.Size, e.Exists = m.Kind, m.Timestamp, m.Size, true

		w, err := tx.Load(ns.slots.owner(id))
		if err != nil {
			return err
		}
		e.Owner = identityFromWord(w)

		if e.Name, err = readName(tx, ns.slots, id, MaxNameLength); err != nil {
			return err
		}

		switch m.Kind {
		case KindDirectory:
			w, err := tx.Load(ns.slots.target(id))
			if err != nil {
				return err
			}
			e.Target = refFromWord(w)
		case KindFile:
			if withBody {
				if e.Body, err = readClusters(tx, ns.slots, id, offset, length, m.Size); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("%s %d: %w", op, id, err)
	}
	return e, nil
}

func (ns *Namespace) getEntries(ctx context.Context, op string, start, limit uint64) ([]uint64, error) {
	var ids []uint64
	err := ns.host.view(ctx, op, func(tx cell.Store) error {
		words, err := ns.index.snapshot(tx, start, limit)
		if err != nil {
			return err
		}
		ids = make([]uint64, len(words))
		for i, w := range words {
			ids[i] = wordUint64(w)
		}
		return nil
	})
	return ids, err
}
