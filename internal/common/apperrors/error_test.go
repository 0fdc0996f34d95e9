package apperrors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorLineage(t *testing.T) {
	ErrClient := New("client error")
	assert.Equal(t, "client error", ErrClient.Error())
	assert.ErrorIs(t, ErrClient, ErrClient)

	ErrBusiness := ErrClient.New("business failure")
	assert.Equal(t, "business failure", ErrBusiness.Error())
	assert.ErrorIs(t, ErrBusiness, ErrClient)

	ErrOther := New("other")
	assert.False(t, errors.Is(ErrBusiness, ErrOther))

	cause := errors.New("connection refused")
	wrapped := ErrBusiness.Err(cause)
	assert.Equal(t, "business failure", wrapped.Error())
	assert.ErrorIs(t, wrapped, ErrClient)
	assert.ErrorIs(t, wrapped, ErrBusiness)
	assert.ErrorIs(t, wrapped, cause)

	withMsg := ErrBusiness.MsgErr("customer name taken", fmt.Errorf("code 409"))
	assert.Equal(t, "customer name taken", withMsg.Error())
	assert.ErrorIs(t, withMsg, ErrBusiness)
	assert.Len(t, withMsg.UnwrapAll(), 2)
}

func TestErrorStatusAndExpansion(t *testing.T) {
	ErrUnauthorized := New("unauthorized").SetStatusCode(http.StatusUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, ErrUnauthorized.StatusCode())

	child := ErrUnauthorized.Msg("token expired")
	assert.Equal(t, http.StatusUnauthorized, child.StatusCode())
	assert.Equal(t, "token expired", child.ErrorAll())

	expanded := ErrUnauthorized.SetExpandError(true).Msg("token expired")
	assert.Equal(t, "token expired; unauthorized", expanded.ErrorAll())
}
