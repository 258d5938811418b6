package storyteller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localpiece/src/infrastructure/integrations/storyteller"
)

func TestGenerate(t *testing.T) {
	var gotReq storyteller.GenerateRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/blogs", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(storyteller.GenerateResponse{
			ID:      1,
			Blog:    []storyteller.BlogSection{{Image: "url1", Text: "hello"}},
			Comment: "bye",
		})
	}))
	defer srv.Close()

	client := storyteller.NewClient(srv.URL, "secret-token", nil)

	ts := "2024-05-01T09:00:00"
	lat := 35.1796
	resp, err := client.Generate(context.Background(), &storyteller.GenerateRequest{
		ID:   "req-1",
		City: "Busan",
		Images: []storyteller.ImageRef{
			{URL: "url1", Filename: "a.jpg", Timestamp: &ts, Latitude: &lat},
			{URL: "url2", Filename: "b.jpg"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "req-1", gotReq.ID)
	assert.Equal(t, "Busan", gotReq.City)
	require.Len(t, gotReq.Images, 2)
	require.NotNil(t, gotReq.Images[0].Timestamp)
	assert.Equal(t, ts, *gotReq.Images[0].Timestamp)
	assert.Nil(t, gotReq.Images[1].Timestamp)

	require.Len(t, resp.Blog, 1)
	assert.Equal(t, "url1", resp.Blog[0].Image)
	assert.Equal(t, "bye", resp.Comment)
}

func TestGenerateNoAuthHeaderWithoutToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(storyteller.GenerateResponse{Comment: "ok"})
	}))
	defer srv.Close()

	client := storyteller.NewClient(srv.URL, "", nil)
	_, err := client.Generate(context.Background(), &storyteller.GenerateRequest{ID: "r", City: "Busan"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model is on fire", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := storyteller.NewClient(srv.URL, "", nil)
	_, err := client.Generate(context.Background(), &storyteller.GenerateRequest{ID: "r", City: "Busan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestGenerateEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := storyteller.NewClient(srv.URL, "", nil)
	_, err := client.Generate(context.Background(), &storyteller.GenerateRequest{ID: "r", City: "Busan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestGenerateEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(storyteller.GenerateResponse{})
	}))
	defer srv.Close()

	client := storyteller.NewClient(srv.URL, "", nil)
	_, err := client.Generate(context.Background(), &storyteller.GenerateRequest{ID: "r", City: "Busan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content")
}
