package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomsync/roomsync/internal/api"
	"github.com/roomsync/roomsync/internal/store"
)

func TestHistory_MapsRecords(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/chatrooms/3/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"ID": 1, "UserID": 7, "RoomID": 3, "Content": "mine", "CreatedAt": "2026-08-20T10:00:00Z"},
			{"ID": 2, "UserID": 9, "RoomID": 3, "Content": "theirs", "CreatedAt": "2026-08-20T10:00:05Z"},
		})
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok-123", 7)
	msgs, err := client.History(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", gotAuth)
	require.Len(t, msgs, 2)

	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, store.StatusSent, msgs[0].Status)
	assert.True(t, msgs[0].FromSelf)
	assert.NotEmpty(t, msgs[0].CorrelationID, "history entries get a fresh local correlation id")

	assert.False(t, msgs[1].FromSelf)
	assert.Equal(t, "theirs", msgs[1].Content)
	assert.NotEqual(t, msgs[0].CorrelationID, msgs[1].CorrelationID)
}

func TestHistory_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok", 7)
	_, err := client.History(context.Background(), 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestRooms_UnwrapsDataKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/memberships/alice/chatrooms", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"ID":3,"Name":"general"},{"ID":4,"Name":"random"}]}`))
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok", 7)
	list, err := client.Rooms(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "general", list[0].Name)
	assert.Equal(t, int64(4), list[1].ID)
}

func TestSearchRooms_QueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chatrooms/search", r.URL.Path)
		require.Equal(t, "go talk", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"data":[{"ID":5,"Name":"go talk"}]}`))
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok", 7)
	list, err := client.SearchRooms(context.Background(), "go talk")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCreateRoom_PostsName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "new room", body["name"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"ID":6,"Name":"new room"}}`))
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok", 7)
	room, err := client.CreateRoom(context.Background(), "new room")
	require.NoError(t, err)
	assert.Equal(t, int64(6), room.ID)
}

func TestJoinRoom_PostsMembership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/memberships/add-user", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice", body["username"])
		require.EqualValues(t, 3, body["chatroomid"])
		_, _ = w.Write([]byte(`{"message":"user added to chatroom"}`))
	}))
	defer srv.Close()

	client := api.New(srv.URL, "tok", 7)
	require.NoError(t, client.JoinRoom(context.Background(), "alice", 3))
}
