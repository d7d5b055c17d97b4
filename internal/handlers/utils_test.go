package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamdb/apiserver/internal/store"
	"github.com/yamdb/apiserver/internal/validation"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query               string
		page, limit, offset int
		wantErr             bool
	}{
		{query: "", page: 1, limit: 20, offset: 0},
		{query: "page=3&limit=10", page: 3, limit: 10, offset: 20},
		{query: "page_size=5", page: 1, limit: 5, offset: 0},
		{query: "per_page=7&page=2", page: 2, limit: 7, offset: 7},
		{query: "limit=1000", page: 1, limit: 100, offset: 0},
		{query: "page=0", wantErr: true},
		{query: "limit=-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			page, limit, offset, err := parsePagination(req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, page)
			assert.Equal(t, tt.limit, limit)
			assert.Equal(t, tt.offset, offset)
		})
	}
}

func TestPageURLHonoursForwardedProto(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.test/api/titles/?genre=drama&page=2", nil)
	req.Header.Set("X-Forwarded-Proto", "https")

	assert.Equal(t, "https://api.test/api/titles/?genre=drama&page=3", pageURL(req, 3))
	assert.Equal(t, "https://api.test/api/titles/?genre=drama", pageURL(req, 1))
}

func TestWriteListEmptyResults(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/genres/", nil)

	writeList[string](rec, req, 1, 20, 0, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"next":null,"previous":null,"results":[]}`, rec.Body.String())
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: validation.Field("name", "This field is required."), status: http.StatusBadRequest},
		{err: store.ErrNotFound, status: http.StatusNotFound},
		{err: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		writeServiceError(rec, req, tt.err, "do things")
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}
