package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{Validation("name is required"), KindValidation},
		{NotFound("powerhouse %q not found", "P1"), KindNotFound},
		{Forbidden("admin only"), KindForbidden},
		{Unavailable("load snapshot", errors.New("dial tcp: refused")), KindStoreUnavailable},
		{ErrInvalidCredentials, KindAuth},
		{errors.New("boom"), KindInternal},
		{fmt.Errorf("wrapped: %w", Validation("bad")), KindValidation},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindOf(tc.err), tc.err.Error())
	}
}

func TestMessageHidesDriverDetails(t *testing.T) {
	err := Unavailable("replace snapshot", errors.New("password authentication failed for user app"))
	assert.Equal(t, "store unavailable", Message(err))
	assert.Contains(t, err.Error(), "password authentication failed")
	assert.Equal(t, "internal error", Message(errors.New("nil pointer")))
	assert.Equal(t, "invalid credentials", Message(ErrInvalidCredentials))
}

func TestPredicatesOnNil(t *testing.T) {
	assert.False(t, IsValidation(nil))
	assert.False(t, IsAuth(nil))
	assert.True(t, IsStoreUnavailable(Unavailable("ping", nil)))
}
