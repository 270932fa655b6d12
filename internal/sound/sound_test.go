package sound

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_Drain(t *testing.T) {
	r := &Recorder{}
	assert.Empty(t, r.Drain())

	r.PlaySound(AddedContact)
	r.PlaySound(AddedContact)
	assert.Equal(t, []Type{AddedContact, AddedContact}, r.Drain())
	assert.Empty(t, r.Drain())
}

func TestAddedContactName(t *testing.T) {
	assert.Equal(t, Type("addedContact"), AddedContact)
}
