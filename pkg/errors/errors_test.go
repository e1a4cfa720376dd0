package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesSentinel(t *testing.T) {
	err := Clone(ErrOutOfRange, "mark 25 exceeds maximum 20")
	require.True(t, errors.Is(err, ErrOutOfRange))
	assert.False(t, errors.Is(err, ErrInvalidMaximum))
	assert.Equal(t, "mark 25 exceeds maximum 20", err.Error())
}

func TestWrappedCloneStillMatches(t *testing.T) {
	inner := Clonef(ErrUnknownEntity, "student %d not registered", 4)
	outer := fmt.Errorf("set mark: %w", inner)
	assert.True(t, errors.Is(outer, ErrUnknownEntity))
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Nil(t, FromError(nil))
}
