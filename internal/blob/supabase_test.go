package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestSupabase_List(t *testing.T) {
	var requests []supabaseListRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/storage/v1/object/list/certificates", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))

		var req supabaseListRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		writeJSON(w, http.StatusOK, []map[string]any{
			{"name": "2024", "id": nil},
			{"name": "cert.pdf", "id": "8f2c", "metadata": map[string]any{"mimetype": "application/pdf"}},
		})
	}))
	defer server.Close()

	store := NewSupabase(server.URL+"/", "service-key")
	entries, err := store.List(context.Background(), "certificates", "students")
	require.NoError(t, err)

	assert.Equal(t, []Entry{{Name: "2024"}, {Name: "cert.pdf", ID: "8f2c"}}, entries)
	assert.True(t, entries[0].IsFolder())
	require.Len(t, requests, 1)
	assert.Equal(t, "students", requests[0].Prefix)
	assert.Equal(t, supabasePageSize, requests[0].Limit)
}

func TestSupabase_ListPages(t *testing.T) {
	var offsets []int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req supabaseListRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		offsets = append(offsets, req.Offset)

		count := supabasePageSize
		if req.Offset > 0 {
			count = 3
		}
		page := make([]map[string]any, count)
		for i := range page {
			page[i] = map[string]any{"name": fmt.Sprintf("f%d", req.Offset+i), "id": "x"}
		}
		writeJSON(w, http.StatusOK, page)
	}))
	defer server.Close()

	entries, err := NewSupabase(server.URL, "key").List(context.Background(), "avatars", "")
	require.NoError(t, err)
	assert.Len(t, entries, supabasePageSize+3)
	assert.Equal(t, []int{0, supabasePageSize}, offsets)
}

func TestSupabase_ListNull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("null"))
	}))
	defer server.Close()

	entries, err := NewSupabase(server.URL, "key").List(context.Background(), "avatars", "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSupabase_ListError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"statusCode": "403",
			"error":      "Unauthorized",
			"message":    "permission denied",
		})
	}))
	defer server.Close()

	_, err := NewSupabase(server.URL, "key").List(context.Background(), "avatars", "")
	require.EqualError(t, err, "permission denied")

	// provider text survives the recursive crawl
	_, err = ListRecursive(context.Background(), NewSupabase(server.URL, "key"), "avatars", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSupabase_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.EscapedPath() != "/storage/v1/object/avatars/user%201/avatar.png" {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Object not found"})
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-data"))
	}))
	defer server.Close()

	store := NewSupabase(server.URL, "key")
	obj, err := store.Download(context.Background(), "avatars", "user 1/avatar.png")
	require.NoError(t, err)
	assert.Equal(t, "png-data", string(obj.Data))
	assert.Equal(t, "image/png", obj.ContentType)

	_, err = store.Download(context.Background(), "avatars", "missing.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Object not found")
}
