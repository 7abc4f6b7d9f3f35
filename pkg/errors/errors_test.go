package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeWalksChain(t *testing.T) {
	base := NotFound("character %d not found", 7)
	wrapped := fmt.Errorf("generate: %w", Wrap(base, "lookup character"))

	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(wrapped, CodeValidation))
	assert.Equal(t, CodeNotFound, GetCode(wrapped))
}

func TestWrapCodeOverridesInner(t *testing.T) {
	err := Transient(stderrors.New("dial tcp: timeout"), "llm completion")

	assert.Equal(t, CodeTransient, GetCode(err))
	assert.Equal(t, "llm completion: dial tcp: timeout", err.Error())
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestWithContextDoesNotMutate(t *testing.T) {
	orig := Validation("missing field")
	withCtx := orig.WithContext("field", "user_id")

	assert.Empty(t, orig.Context)
	assert.Equal(t, []KeyValue{{Key: "field", Value: "user_id"}}, withCtx.Context)
}
