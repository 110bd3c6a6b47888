package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fioncat/csync-go/internal/store"
	"github.com/fioncat/csync-go/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoginThenListRequiresToken(t *testing.T) {
	st := memory.New()
	auth := NewMemoryTokenIssuer("secret", time.Minute)
	srv := New(testLogger(), st, auth)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/metadata")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	loginBody, _ := json.Marshal(map[string]string{"password": "secret"})
	resp, err = http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	require.NotEmpty(t, loginResp.Token)

	req, _ := http.NewRequest("GET", ts.URL+"/api/v1/metadata", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var page store.Page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Empty(t, page.Items)
}

func TestWrongPasswordRejected(t *testing.T) {
	st := memory.New()
	auth := NewMemoryTokenIssuer("secret", time.Minute)
	srv := New(testLogger(), st, auth)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	loginBody, _ := json.Marshal(map[string]string{"password": "wrong"})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndFetchBlob(t *testing.T) {
	st := memory.New()
	auth := NewMemoryTokenIssuer("", time.Minute)
	srv := New(testLogger(), st, auth)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	loginBody, _ := json.Marshal(map[string]string{"password": ""})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(loginBody))
	require.NoError(t, err)
	var loginResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))

	req, _ := http.NewRequest("POST", ts.URL+"/api/v1/blobs?owner=alice&summary=hi", bytes.NewReader([]byte("payload")))
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var meta store.Metadata
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&meta))
	assert.Equal(t, "alice", meta.Owner)

	req, _ = http.NewRequest("GET", ts.URL+"/api/v1/blobs/1", nil)
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "payload", string(body))
}
