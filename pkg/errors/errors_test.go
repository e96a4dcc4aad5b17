package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/promptvault/pkg/resilience"
)

func TestHTTPStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", NotFound("p1"), http.StatusNotFound},
		{"wrapped forbidden", fmt.Errorf("update: %w", Forbidden("p1")), http.StatusForbidden},
		{"invalid", Invalid("bad body"), http.StatusBadRequest},
		{"unauthorized", Unauthorized("sign in"), http.StatusUnauthorized},
		{"breaker open", fmt.Errorf("cache: %w", resilience.ErrCircuitOpen), http.StatusServiceUnavailable},
		{"timeout", resilience.ErrTimeout, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"unknown kind", New(Kind(99), "?"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusCode(tc.err))
		})
	}
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "prompt p1 not found", PublicMessage(NotFound("p1")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: connection reset")))
	assert.Equal(t, "service unavailable", PublicMessage(resilience.ErrTimeout))
	assert.Equal(t, "not found", PublicMessage(Wrap(errors.New("x"), KindNotFound, "")))
}

func TestIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("get: %w", NotFound("p1"))
	assert.ErrorIs(t, err, &AppError{Kind: KindNotFound})
	assert.NotErrorIs(t, err, &AppError{Kind: KindForbidden})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pq: duplicate key")
	err := Wrap(cause, KindInvalid, "already exists")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid input: already exists: pq: duplicate key", err.Error())
}
