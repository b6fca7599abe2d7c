package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePoll(t *testing.T) {
	var gotBody CreatePollRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/polls", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CreatePollResponse{
			RoomID:   "AB12CD",
			Question: gotBody.Question,
			Options:  gotBody.Options,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	resp, err := c.CreatePoll(context.Background(), CreatePollRequest{
		Question: "Lunch?",
		Options:  []string{"Pho", "Banh mi"},
		Password: "secret",
	})
	require.NoError(t, err)

	assert.Equal(t, "AB12CD", resp.RoomID)
	assert.Equal(t, []string{"Pho", "Banh mi"}, resp.Options)
	assert.Equal(t, "secret", gotBody.Password)
}

func TestCreatePollAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorResponse{Error: "question is required"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.CreatePoll(context.Background(), CreatePollRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "question is required")
	assert.Contains(t, err.Error(), "400")
}

func TestListPublicRooms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/polls/public", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"rooms": [
				{"roomId":"AB12CD","question":"Lunch?","totalVotes":4,"createdAt":"2025-11-03T10:00:00Z","isActive":true,"hasPassword":false},
				{"roomId":"EF34GH","question":"Team name?","totalVotes":0,"createdAt":"2025-11-03T11:00:00Z","isActive":false,"hasPassword":true}
			],
			"total": 2
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.ListPublicRooms(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Rooms, 2)
	assert.Equal(t, "AB12CD", resp.Rooms[0].RoomID)
	assert.Equal(t, 4, resp.Rooms[0].TotalVotes)
	assert.True(t, resp.Rooms[1].HasPassword)
}

func TestListPublicRoomsPlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ListPublicRooms(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
