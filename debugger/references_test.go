package debugger

import (
	"testing"

	e "github.com/fansqz/node-debugger/error"
	"github.com/stretchr/testify/assert"
)

func TestCreateVariableReferenceDedupes(t *testing.T) {
	util := NewReferenceUtil()

	first, err := util.CreateVariableReference(NewObjectExpander(12))
	assert.Nil(t, err)
	second, err := util.CreateVariableReference(NewObjectExpander(12))
	assert.Nil(t, err)
	assert.Equal(t, first, second)

	other, err := util.CreateVariableReference(NewObjectExpander(13))
	assert.Nil(t, err)
	assert.NotEqual(t, first, other)
}

func TestParseVariableReferenceRoundTrip(t *testing.T) {
	util := NewReferenceUtil()

	reference, err := util.CreateVariableReference(NewScopeExpander(2, 1, 3, 88))
	assert.Nil(t, err)

	exp, err := util.ParseVariableReference(reference)
	assert.Nil(t, err)
	assert.Equal(t, ScopeExpander, exp.Kind)
	assert.Equal(t, 2, exp.FrameIndex)
	assert.Equal(t, 1, exp.ScopeIndex)
	assert.Equal(t, 3, exp.ScopeType)
	assert.Equal(t, 88, exp.ThisRef)

	reference, err = util.CreateVariableReference(NewRangeExpander(7, 100, 199))
	assert.Nil(t, err)
	exp, err = util.ParseVariableReference(reference)
	assert.Nil(t, err)
	assert.Equal(t, RangeExpander, exp.Kind)
	assert.Equal(t, 7, exp.Handle)
	assert.Equal(t, 100, exp.Start)
	assert.Equal(t, 199, exp.End)
}

func TestParseVariableReferenceUnknown(t *testing.T) {
	util := NewReferenceUtil()
	_, err := util.ParseVariableReference(424242)
	assert.ErrorIs(t, err, e.ErrReferenceNotFound)
}

func TestResetInvalidatesOldReferences(t *testing.T) {
	util := NewReferenceUtil()

	reference, err := util.CreateVariableReference(NewObjectExpander(5))
	assert.Nil(t, err)

	util.Reset()
	_, err = util.ParseVariableReference(reference)
	assert.ErrorIs(t, err, e.ErrReferenceNotFound)

	// references stay monotonic across resets so stale client references
	// never alias fresh ones
	fresh, err := util.CreateVariableReference(NewObjectExpander(5))
	assert.Nil(t, err)
	assert.Greater(t, fresh, reference)
}
