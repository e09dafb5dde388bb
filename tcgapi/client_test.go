package tcgapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcg_catalog/config"
)

// newTestClient creates a Client pointed at handler.
func newTestClient(t *testing.T, apiKey string, retryMax int, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(config.TCGAPIConfig{
		BaseURL:        server.URL + "/",
		APIKey:         apiKey,
		TimeoutSeconds: 5,
		RetryMax:       retryMax,
	}, zerolog.Nop())
}

func TestSearchCards_ForwardsParams(t *testing.T) {
	client := newTestClient(t, "secret", 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards", r.URL.Path)
		assert.Equal(t, "name:pikachu*", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "-set.releaseDate", r.URL.Query().Get("orderBy"))
		assert.False(t, r.URL.Query().Has("select"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"base1-58"}],"page":2,"pageSize":50,"count":1,"totalCount":51}`))
	})

	body, err := client.SearchCards(context.Background(), SearchParams{
		Q:        "name:pikachu*",
		Page:     2,
		PageSize: 50,
		OrderBy:  "-set.releaseDate",
	})
	require.NoError(t, err)

	var resp struct {
		Data       []map[string]string `json:"data"`
		TotalCount int                 `json:"totalCount"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 51, resp.TotalCount)
	assert.Equal(t, "base1-58", resp.Data[0]["id"])
}

func TestCard_NoAPIKeyHeader(t *testing.T) {
	client := newTestClient(t, "", 0, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards/xy7-54", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-Api-Key"))
		w.Write([]byte(`{"data":{"id":"xy7-54"}}`))
	})

	body, err := client.Card(context.Background(), "xy7-54")
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"id":"xy7-54"}}`, string(body))
}

func TestCard_EmptyID(t *testing.T) {
	client := New(config.TCGAPIConfig{}, zerolog.Nop())
	_, err := client.Card(context.Background(), "")
	require.Error(t, err)
}

func TestGet_UpstreamNotFound(t *testing.T) {
	client := newTestClient(t, "", 0, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"Not Found","code":404}}`))
	})

	_, err := client.Card(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusNotFound, upstreamErr.StatusCode)
	assert.Contains(t, upstreamErr.Body, "Not Found")
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, "", 2, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	})

	body, err := client.SearchSets(context.Background(), SearchParams{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_ServerErrorAfterRetries(t *testing.T) {
	client := newTestClient(t, "", 1, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.SearchCards(context.Background(), SearchParams{Q: "name:mew"})
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusServiceUnavailable, upstreamErr.StatusCode)
}

func TestGet_InvalidJSON(t *testing.T) {
	client := newTestClient(t, "", 0, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	})

	_, err := client.Card(context.Background(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUpstream)
}

func TestSearchParams_Values(t *testing.T) {
	assert.Empty(t, SearchParams{}.Values())
	v := SearchParams{Q: "set.id:base1", Select: "id,name"}.Values()
	assert.Equal(t, "set.id:base1", v.Get("q"))
	assert.Equal(t, "id,name", v.Get("select"))
}
