package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/split-budget/internal/common"
)

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", common.Invalid("name", "is required"), http.StatusBadRequest, "invalid_argument"},
		{"not found", fmt.Errorf("failed to get category: %w", common.ErrNotFound), http.StatusNotFound, "not_found"},
		{"conflict", common.ErrUserAlreadyExists, http.StatusConflict, "conflict"},
		{"credentials", common.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"token", common.ErrTokenInvalid, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", common.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, nil, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, errors.New("pq: password authentication failed"))
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestDecode(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"rent"}`))
		var p payload
		require.NoError(t, Decode(httptest.NewRecorder(), req, &p))
		assert.Equal(t, "rent", p.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"rent","extra":1}`))
		var p payload
		err := Decode(httptest.NewRecorder(), req, &p)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("empty", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
		var p payload
		assert.ErrorIs(t, Decode(httptest.NewRecorder(), req, &p), common.ErrInvalidInput)
	})

	t.Run("trailing data", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
		var p payload
		assert.ErrorIs(t, Decode(httptest.NewRecorder(), req, &p), common.ErrInvalidInput)
	})
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=x", nil)

	_, err := QueryInt(req, "limit", 50, 1, 200)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = QueryInt(req, "offset", 0, 0, 1000)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	v, err := QueryInt(req, "missing", 7, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
