package events

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/cellfs/pkg/cell/memory"
	"github.com/marmos91/cellfs/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []engine.Event {
	caller, _ := engine.ParseIdentity("0x00000000000000000000000000000000000000a1")
	ns := engine.NewRef()
	return []engine.Event{
		{Kind: engine.EventNamespaceCreated, Namespace: ns, Caller: caller, Timestamp: 10},
		{Kind: engine.EventFileCreated, Namespace: ns, Caller: caller, EntryID: 0, Timestamp: 11, Offset: 6, Length: 5},
		{Kind: engine.EventDirectoryCreated, Namespace: ns, Caller: caller, EntryID: 1, Timestamp: 12, Target: engine.NewRef()},
	}
}

func readAll(t *testing.T, data []byte) []engine.Event {
	t.Helper()
	var got []engine.Event
	require.NoError(t, ReadJournal(bytes.NewReader(data), func(e engine.Event) error {
		got = append(got, e)
		return nil
	}))
	return got
}

func TestJournal_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	j := NewJournal(&buf)

	want := sampleEvents()
	for _, e := range want {
		j.Notify(e)
	}
	require.NoError(t, j.Err())
	assert.Equal(t, want, readAll(t, buf.Bytes()))
}

func TestJournal_DeterministicEncoding(t *testing.T) {
	e := sampleEvents()[1]

	var a, b bytes.Buffer
	NewJournal(&a).Notify(e)
	NewJournal(&b).Notify(e)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestJournal_FileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.cbor")
	events := sampleEvents()

	j, err := OpenJournal(path)
	require.NoError(t, err)
	j.Notify(events[0])
	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	j.Notify(events[1])
	require.NoError(t, j.Close())

	var got []engine.Event
	require.NoError(t, ReadJournalFile(path, func(e engine.Event) error {
		got = append(got, e)
		return nil
	}))
	assert.Equal(t, events[:2], got)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJournal_WriteFailureDisablesJournal(t *testing.T) {
	j := NewJournal(failingWriter{})
	j.Notify(sampleEvents()[0])
	assert.Error(t, j.Err())

	// Further events are dropped without panicking.
	j.Notify(sampleEvents()[1])
	assert.Error(t, j.Err())
}

func TestReadJournal_StopsOnCallbackError(t *testing.T) {
	var buf bytes.Buffer
	j := NewJournal(&buf)
	for _, e := range sampleEvents() {
		j.Notify(e)
	}

	stop := errors.New("stop")
	n := 0
	err := ReadJournal(&buf, func(engine.Event) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestReadJournal_Corrupt(t *testing.T) {
	err := ReadJournal(bytes.NewReader([]byte{0xff, 0x00, 0x13}), func(engine.Event) error { return nil })
	assert.Error(t, err)
}

func TestJournal_RecordsHostEvents(t *testing.T) {
	ctx := context.Background()
	backend, err := memory.NewMemoryBackend(ctx, memory.MemoryBackendConfig{})
	require.NoError(t, err)

	var buf bytes.Buffer
	bus := NewBus()
	bus.Subscribe(NewJournal(&buf))

	host := engine.NewHost(backend, engine.HostOptions{
		Clock:    engine.NewFakeClock(time.Unix(1_800_000_000, 0)),
		Notifier: bus,
	})
	defer host.Close()

	caller := engine.Identity{0x01}
	ns, err := host.CreateNamespace(engine.Call(ctx, caller))
	require.NoError(t, err)
	id, err := ns.CreateFile(engine.Call(ctx, caller), []byte("f"), []byte("body"), 0)
	require.NoError(t, err)
	require.NoError(t, ns.DeleteEntry(engine.Call(ctx, caller), id))

	got := readAll(t, buf.Bytes())
	require.Len(t, got, 3)
	assert.Equal(t, engine.EventNamespaceCreated, got[0].Kind)
	assert.Equal(t, engine.EventFileCreated, got[1].Kind)
	assert.Equal(t, engine.EventEntryDeleted, got[2].Kind)
	for _, e := range got {
		assert.Equal(t, ns.Ref(), e.Namespace)
		assert.Equal(t, caller, e.Caller)
		assert.Equal(t, uint64(1_800_000_000), e.Timestamp)
	}
}
