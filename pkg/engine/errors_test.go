package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := newError("UpdateFile", ErrNotOwner, 3, "entry belongs to %s", bob)
	assert.Equal(t, "UpdateFile 3: entry belongs to "+bob.String(), err.Error())

	bare := &Error{Code: ErrSizeOverflow}
	assert.Equal(t, "SizeOverflow", bare.Error())
}

func TestIsCode_SeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", newError("DeleteEntry", ErrNotFound, 1, "gone"))
	assert.True(t, IsCode(err, ErrNotFound))
	assert.False(t, IsCode(err, ErrNotOwner))
	assert.False(t, IsCode(errors.New("plain"), ErrNotFound))
	assert.False(t, IsCode(nil, ErrNotFound))
}

func TestErrorCode_Names(t *testing.T) {
	assert.Equal(t, "InvalidTarget", ErrInvalidTarget.String())
	assert.Equal(t, "invalid_target", (&Error{Code: ErrInvalidTarget}).CodeName())
	assert.Equal(t, "name_too_long", (&Error{Code: ErrNameTooLong}).CodeName())
	assert.Equal(t, "ErrorCode(99)", ErrorCode(99).String())
}

func TestIdentity_ParseRoundTrip(t *testing.T) {
	id, err := ParseIdentity(alice.String())
	assert.NoError(t, err)
	assert.Equal(t, alice, id)

	anon, err := ParseIdentity("")
	assert.NoError(t, err)
	assert.True(t, anon.IsAnonymous())

	_, err = ParseIdentity("0x1234")
	assert.Error(t, err)
}

func TestRef_ParseRoundTrip(t *testing.T) {
	ref := NewRef()
	parsed, err := ParseRef(ref.String())
	assert.NoError(t, err)
	assert.Equal(t, ref, parsed)
	assert.False(t, ref.IsNull())
	assert.True(t, NullRef.IsNull())

	_, err = ParseRef("not-a-uuid")
	assert.Error(t, err)
}
