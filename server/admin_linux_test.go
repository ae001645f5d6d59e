//go:build linux

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminRouter(t *testing.T) {
	svr := NewServer(nil, Options{Logger: quietLogger()})
	require.NoError(t, svr.Register(&Arith{}))
	ar := AdminRouterOf(svr)

	rec := httptest.NewRecorder()
	ar.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	_, _, err := svr.Open("127.0.0.1", 0)
	require.NoError(t, err)
	defer svr.Close()
	_, err = openSession(t, svr.Addr()).Send(context.Background(), []byte{0xff})
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	ar.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, svr.Addr(), rec.Body.String())

	rec = httptest.NewRecorder()
	ar.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Accepted)
	assert.Equal(t, int64(1), stats.Requests)

	rec = httptest.NewRecorder()
	ar.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/services", nil))
	assert.JSONEq(t, `["Arith"]`, rec.Body.String())

	rec = httptest.NewRecorder()
	ar.ServeHTTP(rec, httptest.NewRequest("POST", "/admin/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	require.NoError(t, svr.Close())
	rec = httptest.NewRecorder()
	ar.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
