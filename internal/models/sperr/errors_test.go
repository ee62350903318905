package sperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Invalid("rating must be between %d and %d", 1, 5), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("upload: %w", Invalid("bad")), http.StatusBadRequest},
		{"not found", NotFound("image"), http.StatusNotFound},
		{"conflict", Conflict("dup"), http.StatusConflict},
		{"unauthorized", Unauthorized("no token"), http.StatusUnauthorized},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "image not found", Message(NotFound("image"), "Server error"))
	assert.Equal(t, "rating must be between 1 and 5", Message(Invalid("rating must be between 1 and 5"), "Server error"))
	assert.Equal(t, "Server error", Message(errors.New("sql: connection refused"), "Server error"))
}

type sample struct {
	Name   string `json:"name" validate:"required,max=5"`
	Email  string `json:"email" validate:"required,email"`
	Rating int    `json:"rating" validate:"min=1,max=5"`
	Kind   string `json:"kind" validate:"omitempty,oneof=a b"`
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(sample{Name: "Asha", Email: "a@x.com", Rating: 5}))

	tests := []struct {
		in   sample
		want string
	}{
		{sample{Email: "a@x.com", Rating: 1}, "name is required"},
		{sample{Name: "Ashley", Email: "a@x.com", Rating: 1}, "name must be at most 5 characters"},
		{sample{Name: "A", Email: "nope", Rating: 1}, "email must be a valid email address"},
		{sample{Name: "A", Email: "a@x.com", Rating: 6}, "rating must be at most 5"},
		{sample{Name: "A", Email: "a@x.com", Rating: 1, Kind: "c"}, "kind must be one of: a, b"},
	}
	for _, tt := range tests {
		err := Validate(tt.in)
		assert.ErrorIs(t, err, ErrValidation)
		assert.EqualError(t, err, tt.want)
	}
}
