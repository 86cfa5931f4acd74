package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletionFaultError(t *testing.T) {
	cause := errors.New("503")
	err := fmt.Errorf("tick: %w", &CompletionFaultError{Attempts: 3, Err: cause})

	assert.ErrorIs(t, err, ErrCompletionFault)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrStoreFault)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
}

func TestStoreFaultError(t *testing.T) {
	cause := errors.New("disk full")
	err := &StoreFaultError{Op: "set", Key: "agent/a/events", Err: cause}

	assert.ErrorIs(t, err, ErrStoreFault)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `store set "agent/a/events": disk full`, err.Error())
}

func TestAsCompletionFault(t *testing.T) {
	assert.NoError(t, AsCompletionFault(nil))

	wrapped := AsCompletionFault(errors.New("timeout"))
	var cf *CompletionFaultError
	assert.ErrorAs(t, wrapped, &cf)
	assert.Equal(t, 1, cf.Attempts)

	already := &CompletionFaultError{Attempts: 3, Err: errors.New("x")}
	assert.Same(t, already, AsCompletionFault(already))
}
