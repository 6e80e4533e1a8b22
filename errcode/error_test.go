package errcode

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayeredError(t *testing.T) {
	base := New(ModuleBreaker, 1, "breaker", "error.breaker.open", "circuit open", http.StatusServiceUnavailable)

	t.Run("code layout", func(t *testing.T) {
		assert.Equal(t, 800001, base.Code())
		assert.Equal(t, http.StatusServiceUnavailable, base.HTTPStatus())
		assert.Equal(t, "circuit open", base.Error())
	})

	t.Run("default status", func(t *testing.T) {
		e := New(ModuleCommon, 99, "common", "k", "m")
		assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
	})

	t.Run("wrap keeps identity", func(t *testing.T) {
		cause := errors.New("boom")
		wrapped := base.Wrap(cause).WithData("service", "db")

		assert.True(t, errors.Is(wrapped, base))
		assert.True(t, errors.Is(wrapped, cause))
		assert.Equal(t, "circuit open: boom", wrapped.Error())
		assert.Equal(t, "db", wrapped.Data()["service"])
		assert.Nil(t, base.Data())
	})

	t.Run("wrap nil", func(t *testing.T) {
		assert.Same(t, base, base.Wrap(nil))
	})

	t.Run("from chain", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", base.WithMsgf("circuit %s open", "db"))
		le, ok := From(err)
		require.True(t, ok)
		assert.Equal(t, "circuit db open", le.Message())

		_, ok = From(errors.New("plain"))
		assert.False(t, ok)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := New(ModuleScaling, 1, "scaling", "error.scaling.rule", "bad rule")
	r.Register(a)
	r.Register(a)

	key, ok := r.Lookup(a.Code())
	require.True(t, ok)
	assert.Equal(t, "scaling:error.scaling.rule", key)

	assert.Panics(t, func() {
		r.Register(New(ModuleScaling, 1, "scaling", "error.scaling.other", "other"))
	})
	assert.Equal(t, []int{820001}, r.Codes())
	assert.Contains(t, Global().Codes(), ErrInternal.Code())
}
