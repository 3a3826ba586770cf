package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marmos91/cellfs/pkg/cell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func readAll(t *testing.T, ns *Namespace, id uint64) []byte {
	t.Helper()
	body, err := ns.ReadFile(ctx, id, 0, 0)
	require.NoError(t, err)
	return body
}

// assertExistenceInvariant checks that exists(id) holds exactly for the ids
// listed once in GetEntries.
func assertExistenceInvariant(t *testing.T, ns *Namespace, upTo uint64) {
	t.Helper()
	listed, err := ns.GetEntries(ctx)
	require.NoError(t, err)

	seen := make(map[uint64]int)
	for _, id := range listed {
		seen[id]++
	}
	for id := uint64(0); id < upTo; id++ {
		exists, err := ns.Exists(ctx, id)
		require.NoError(t, err)
		if exists {
			assert.Equal(t, 1, seen[id], "existing id %d must be listed once", id)
		} else {
			assert.Zero(t, seen[id], "absent id %d must not be listed", id)
		}
	}

	count, err := ns.GetEntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(listed)), count)
}

func TestNamespace_CreateFileRoundTrip(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), []byte("hello.txt"), []byte("Hello, World!"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, []byte("Hello, World!"), readAll(t, ns, id))

	e, err := ns.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.Exists)
	assert.Equal(t, KindFile, e.Kind)
	assert.Equal(t, alice, e.Owner)
	assert.Equal(t, []byte("hello.txt"), e.Name)
	assert.Equal(t, []byte("Hello, World!"), e.Body)
	assert.Equal(t, uint64(13), e.Size)
	assert.Equal(t, uint64(epoch.Unix()), e.Timestamp)
	assert.True(t, e.Target.IsNull())
}

func TestNamespace_CreateFileAtOffset(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), []byte("w"), []byte("World"), 6)
	require.NoError(t, err)

	body := readAll(t, ns, id)
	require.Len(t, body, 11)
	assert.Equal(t, make([]byte, 6), body[:6])
	assert.Equal(t, []byte("World"), body[6:])
}

func TestNamespace_SparseOverwrite(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), nil, []byte("Hello"), 0)
	require.NoError(t, err)
	require.NoError(t, ns.UpdateFile(as(alice), id, []byte("World"), 6))

	e, err := ns.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), e.Size)
	assert.Equal(t, []byte("Hello"), e.Body[:5])
	assert.Equal(t, byte(0), e.Body[5])
	assert.Equal(t, []byte("World"), e.Body[6:])
}

func TestNamespace_OffsetClamp(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), nil, []byte("Hello, World!"), 0)
	require.NoError(t, err)

	got, err := ns.ReadFile(ctx, id, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, []byte("World!"), got)

	for _, offset := range []uint64{13, 14, 1 << 40} {
		got, err := ns.ReadFile(ctx, id, offset, 5)
		require.NoError(t, err)
		assert.Empty(t, got, "offset %d", offset)
	}
}

func TestNamespace_UpdateFromStartTruncates(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), nil, []byte("Hello World"), 0)
	require.NoError(t, err)

	require.NoError(t, ns.UpdateFile(as(alice), id, []byte("Hi"), 0))
	assert.Equal(t, []byte("Hi"), readAll(t, ns, id))

	// Extending again exposes zeros, not the truncated bytes.
	require.NoError(t, ns.UpdateFile(as(alice), id, []byte("!"), 5))
	assert.Equal(t, []byte("Hi\x00\x00\x00!"), readAll(t, ns, id))
}

func TestNamespace_UpdateRefreshesTimestamp(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), nil, []byte("v1"), 0)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, ns.UpdateFile(as(alice), id, []byte("v2"), 0))

	e, err := ns.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(epoch.Add(time.Hour).Unix()), e.Timestamp)
}

func TestNamespace_Ownership(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), []byte("mine"), []byte("secret"), 0)
	require.NoError(t, err)
	before, err := ns.GetEntry(ctx, id)
	require.NoError(t, err)

	err = ns.UpdateFile(as(bob), id, []byte("x"), 0)
	assert.True(t, IsCode(err, ErrNotOwner), "update: %v", err)

	err = ns.WriteFile(as(bob), id, 0, []byte("x"))
	assert.True(t, IsCode(err, ErrNotOwner), "write: %v", err)

	err = ns.DeleteEntry(as(bob), id)
	assert.True(t, IsCode(err, ErrNotOwner), "delete: %v", err)

	after, err := ns.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNamespace_EnumerationIntegrity(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	var created []uint64
	for _, name := range []string{"a", "b", "c"} {
		id, err := ns.CreateFile(as(alice), []byte(name), []byte(name), 0)
		require.NoError(t, err)
		created = append(created, id)
	}

	require.NoError(t, ns.DeleteEntry(as(alice), created[1]))

	listed, err := ns.GetEntries(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{created[0], created[2]}, listed)
	assert.NotContains(t, listed, created[1])
	assertExistenceInvariant(t, ns, 5)
}

func TestNamespace_DirectoryValidation(t *testing.T) {
	f := newFixture(t)
	parent := f.namespace(t)
	child := f.namespace(t)

	_, err := parent.CreateDirectory(as(alice), []byte("null"), NullRef)
	assert.True(t, IsCode(err, ErrInvalidTarget), "null target: %v", err)

	_, err = parent.CreateDirectory(as(alice), []byte("self"), parent.Ref())
	assert.True(t, IsCode(err, ErrInvalidTarget), "self target: %v", err)

	count, err := parent.GetEntryCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	dirID, err := parent.CreateDirectory(as(alice), []byte("child"), child.Ref())
	require.NoError(t, err)

	fileID, err := child.CreateFile(as(alice), []byte("inner"), []byte("data"), 0)
	require.NoError(t, err)

	childEntries, err := child.GetEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{fileID}, childEntries)

	parentEntries, err := parent.GetEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{dirID}, parentEntries)

	dir, err := parent.GetEntry(ctx, dirID)
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, dir.Kind)
	assert.Equal(t, child.Ref(), dir.Target)
	assert.Zero(t, dir.Size)
	assert.Empty(t, dir.Body)
}

func TestNamespace_IdempotentAbsence(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	e, err := ns.GetEntry(ctx, 42)
	require.NoError(t, err)
	assert.False(t, e.Exists)
	assert.Empty(t, e.Name)
	assert.Empty(t, e.Body)
	assert.Zero(t, e.Timestamp)
	assert.Zero(t, e.Size)
	assert.True(t, e.Owner.IsAnonymous())
	assert.True(t, e.Target.IsNull())

	exists, err := ns.Exists(ctx, 42)
	require.NoError(t, err)
	assert.False(t, exists)

	w, err := ns.ReadCluster(ctx, 42, 0)
	require.NoError(t, err)
	assert.Equal(t, cell.ZeroWord, w)
}

func TestNamespace_NotFoundAndTypeMismatch(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)
	other := f.namespace(t)

	dirID, err := ns.CreateDirectory(as(alice), []byte("d"), other.Ref())
	require.NoError(t, err)

	err = ns.UpdateFile(as(alice), 99, []byte("x"), 0)
	assert.True(t, IsCode(err, ErrNotFound))
	err = ns.DeleteEntry(as(alice), 99)
	assert.True(t, IsCode(err, ErrNotFound))
	_, err = ns.ReadFile(ctx, 99, 0, 0)
	assert.True(t, IsCode(err, ErrNotFound))

	err = ns.UpdateFile(as(alice), dirID, []byte("x"), 0)
	assert.True(t, IsCode(err, ErrTypeMismatch))
	err = ns.WriteFile(as(alice), dirID, 0, []byte("x"))
	assert.True(t, IsCode(err, ErrTypeMismatch))
	_, err = ns.ReadFile(ctx, dirID, 0, 0)
	assert.True(t, IsCode(err, ErrTypeMismatch))
}

func TestNamespace_AlreadyExists(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)
	other := f.namespace(t)

	require.NoError(t, ns.CreateFileAt(as(alice), 5, []byte("a"), []byte("1"), 0))

	err := ns.CreateFileAt(as(bob), 5, []byte("b"), []byte("2"), 0)
	assert.True(t, IsCode(err, ErrAlreadyExists))
	err = ns.CreateDirectoryAt(as(alice), 5, []byte("d"), other.Ref())
	assert.True(t, IsCode(err, ErrAlreadyExists))

	assert.Equal(t, []byte("1"), readAll(t, ns, 5))
}

func TestNamespace_WriteFileUpserts(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	require.NoError(t, ns.WriteFile(as(bob), 7, 0, []byte("abc")))
	require.NoError(t, ns.WriteFile(as(bob), 7, 3, []byte("def")))

	e, err := ns.GetEntry(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), e.Body)
	assert.Empty(t, e.Name)
	assert.Equal(t, bob, e.Owner)
	assertExistenceInvariant(t, ns, 10)
}

func TestNamespace_AllocatorSkipsAndNeverRecycles(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	require.NoError(t, ns.CreateFileAt(as(alice), 1, nil, []byte("explicit"), 0))

	first, err := ns.CreateFile(as(alice), nil, []byte("a"), 0)
	require.NoError(t, err)
	second, err := ns.CreateFile(as(alice), nil, []byte("b"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(2), second)

	require.NoError(t, ns.DeleteEntry(as(alice), first))
	third, err := ns.CreateFile(as(alice), nil, []byte("c"), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), third)

	assertExistenceInvariant(t, ns, 6)
}

func TestNamespace_DeleteZeroesEveryCell(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	baseline := f.backend.Len()

	id, err := ns.CreateFile(as(alice), bytesOf(80, 'n'), bytesOf(100, 1), 0)
	require.NoError(t, err)
	require.NoError(t, ns.DeleteEntry(as(alice), id))

	// Only the allocator counter survives the entry.
	assert.Equal(t, baseline+1, f.backend.Len())

	// A new entry at the same id starts from zero bytes.
	require.NoError(t, ns.CreateFileAt(as(bob), id, []byte("x"), []byte("Hi"), 0))
	assert.Equal(t, []byte("Hi"), readAll(t, ns, id))

	w, err := ns.ReadCluster(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("Hi"), w[:2])
	assert.Equal(t, make([]byte, 30), w[2:])

	w, err = ns.ReadCluster(ctx, id, 3)
	require.NoError(t, err)
	assert.True(t, w.IsZero())
}

func TestNamespace_DeleteDirectory(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)
	other := f.namespace(t)

	id, err := ns.CreateDirectory(as(alice), []byte("link"), other.Ref())
	require.NoError(t, err)
	require.NoError(t, ns.DeleteEntry(as(alice), id))

	e, err := ns.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.False(t, e.Exists)
	assert.True(t, e.Target.IsNull())
}

func TestNamespace_SizeOverflow(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	_, err := ns.CreateFile(as(alice), nil, []byte("x"), MaxFileSize)
	assert.True(t, IsCode(err, ErrSizeOverflow), "%v", err)

	id, err := ns.CreateFile(as(alice), nil, []byte("x"), MaxFileSize-1)
	require.NoError(t, err)

	e, err := ns.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, MaxFileSize, e.Size)

	got, err := ns.ReadFile(ctx, id, MaxFileSize-1, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)

	err = ns.UpdateFile(as(alice), id, []byte("yy"), MaxFileSize-1)
	assert.True(t, IsCode(err, ErrSizeOverflow), "%v", err)
}

func TestNamespace_NameLimits(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)
	other := f.namespace(t)

	longest := bytesOf(MaxNameLength, 'a')
	id, err := ns.CreateFile(as(alice), longest, nil, 0)
	require.NoError(t, err)

	e, err := ns.Stat(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, longest, e.Name)

	_, err = ns.CreateFile(as(alice), bytesOf(MaxNameLength+1, 'a'), nil, 0)
	assert.True(t, IsCode(err, ErrNameTooLong))
	_, err = ns.CreateDirectory(as(alice), bytesOf(MaxNameLength+1, 'a'), other.Ref())
	assert.True(t, IsCode(err, ErrNameTooLong))
}

func TestNamespace_Pagination(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	id, err := ns.CreateFile(as(alice), nil, []byte("0123456789"), 0)
	require.NoError(t, err)

	e, err := ns.GetEntryPage(ctx, id, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), e.Body)
	assert.Equal(t, uint64(10), e.Size)

	e, err = ns.GetEntryPage(ctx, id, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456789"), e.Body)

	for i := 0; i < 4; i++ {
		_, err := ns.CreateFile(as(alice), nil, nil, 0)
		require.NoError(t, err)
	}

	page, err := ns.GetEntriesPage(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, page)

	page, err = ns.GetEntriesPage(ctx, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 4}, page)

	page, err = ns.GetEntriesPage(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestNamespace_ReadCluster(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)

	body := bytesOf(40, 1)
	id, err := ns.CreateFile(as(alice), nil, body, 0)
	require.NoError(t, err)

	w, err := ns.ReadCluster(ctx, id, 0)
	require.NoError(t, err)
	assert.Equal(t, body[:32], w[:])

	w, err = ns.ReadCluster(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, body[32:], w[:8])
	assert.Equal(t, make([]byte, 24), w[8:])

	w, err = ns.ReadCluster(ctx, id, 5)
	require.NoError(t, err)
	assert.True(t, w.IsZero())
}

func TestNamespace_BudgetExhaustionLeavesNoTrace(t *testing.T) {
	f := newFixture(t, func(o *HostOptions) { o.CallBudget = 20 })
	ns := f.namespace(t)

	small, err := ns.CreateFile(as(alice), nil, []byte("a"), 0)
	require.NoError(t, err)
	eventsBefore := len(f.recorded())

	_, err = ns.CreateFile(as(alice), nil, make([]byte, 1000), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, cell.ErrBudgetExhausted))
	assert.Len(t, f.recorded(), eventsBefore)

	count, err := ns.GetEntryCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// The aborted call did not advance the allocator either.
	next, err := ns.CreateFile(as(alice), nil, []byte("b"), 0)
	require.NoError(t, err)
	assert.Equal(t, small+1, next)
}

func TestNamespace_EventsFollowCommits(t *testing.T) {
	f := newFixture(t)
	ns := f.namespace(t)
	other := f.namespace(t)

	id, err := ns.CreateFile(as(alice), nil, []byte("World"), 6)
	require.NoError(t, err)
	dirID, err := ns.CreateDirectory(as(bob), []byte("d"), other.Ref())
	require.NoError(t, err)
	require.NoError(t, ns.UpdateFile(as(alice), id, []byte("Hi"), 0))
	require.Error(t, ns.DeleteEntry(as(alice), dirID))
	require.NoError(t, ns.DeleteEntry(as(bob), dirID))

	var got []Event
	for _, e := range f.recorded() {
		if e.Namespace == ns.Ref() && e.Kind != EventNamespaceCreated {
			got = append(got, e)
		}
	}

	now := uint64(epoch.Unix())
	want := []Event{
		{Kind: EventFileCreated, Namespace: ns.Ref(), Caller: alice, EntryID: id, Timestamp: now, Offset: 6, Length: 5},
		{Kind: EventDirectoryCreated, Namespace: ns.Ref(), Caller: bob, EntryID: dirID, Timestamp: now, Target: other.Ref()},
		{Kind: EventFileUpdated, Namespace: ns.Ref(), Caller: alice, EntryID: id, Timestamp: now, Offset: 0, Length: 2},
		{Kind: EventEntryDeleted, Namespace: ns.Ref(), Caller: bob, EntryID: dirID, Timestamp: now},
	}
	assert.Equal(t, want, got)
}

func TestNamespace_NamespacesAreIsolated(t *testing.T) {
	f := newFixture(t)
	a := f.namespace(t)
	b := f.namespace(t)

	idA, err := a.CreateFile(as(alice), []byte("same"), []byte("from a"), 0)
	require.NoError(t, err)
	idB, err := b.CreateFile(as(alice), []byte("same"), []byte("from b"), 0)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)

	assert.Equal(t, []byte("from a"), readAll(t, a, idA))
	assert.Equal(t, []byte("from b"), readAll(t, b, idB))

	require.NoError(t, a.DeleteEntry(as(alice), idA))
	assert.Equal(t, []byte("from b"), readAll(t, b, idB))
}
