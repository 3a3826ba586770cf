package events

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/marmos91/cellfs/internal/logger"
	"github.com/marmos91/cellfs/pkg/engine"
)

// encMode is Core Deterministic Encoding (RFC 8949 §4.2): the same event
// always produces identical bytes. Refs, identities and event kinds encode
// as text through their MarshalText methods.
var encMode cbor.EncMode

// decMode mirrors encMode for TextUnmarshaler types. Unknown fields are
// ignored so older readers accept newer journals.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("events: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("events: CBOR decoder initialization failed: " + err.Error())
	}
}

// Journal appends every event it is notified of to a CBOR sequence
// (RFC 8742): one encoded event after another, no framing.
//
// Notify cannot return an error, so the first write failure is logged and
// kept; after it the journal drops events. Err reports it.
type Journal struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	enc    *cbor.Encoder
	err    error
}

// NewJournal returns a Journal writing to w.
func NewJournal(w io.Writer) *Journal {
	return &Journal{w: w, enc: encMode.NewEncoder(w)}
}

// OpenJournal opens (or creates) the journal file at path for appending.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal %s: %w", path, err)
	}
	j := NewJournal(f)
	j.closer = f
	return j, nil
}

// Notify implements engine.Notifier.
func (j *Journal) Notify(e engine.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.err != nil {
		return
	}
	if err := j.enc.Encode(e); err != nil {
		j.err = fmt.Errorf("failed to append %s event: %w", e.Kind, err)
		logger.Error("Event journal disabled: %v", j.err)
	}
}

// Err returns the write error that disabled the journal, if any.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Close closes the underlying file when the journal owns one.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closer == nil {
		return nil
	}
	err := j.closer.Close()
	j.closer = nil
	return err
}

// ReadJournal decodes every event in r, in order, calling fn for each. It
// stops at the first error fn returns.
func ReadJournal(r io.Reader, fn func(e engine.Event) error) error {
	dec := decMode.NewDecoder(r)
	for {
		var e engine.Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode event journal: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

// ReadJournalFile is ReadJournal on the file at path.
func ReadJournalFile(path string, fn func(e engine.Event) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event journal %s: %w", path, err)
	}
	defer f.Close()
	return ReadJournal(f, fn)
}
