package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/demerle/liars-dice/internal/api"
)

func newRoomServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/rooms", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("search") == "dice" {
			w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"dice night","maxPlayers":6,"currentPlayers":2,"isActive":true}]}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":[]}`))
	})
	r.Post("/rooms/{roomID}/join", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"success":false,"message":"Invalid room password."}`))
			return
		}
		w.Write([]byte(`{"success":true,"data":{"id":1,"name":"dice night","maxPlayers":6,"currentPlayers":3,"isActive":true}}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewService(api.New(srv.URL, nil, zap.NewNop())), srv
}

func TestList_SearchFilter(t *testing.T) {
	assert := assert.New(t)
	svc, _ := newRoomServer(t)

	rooms, err := svc.List(context.Background(), "dice")
	assert.NoError(err)
	if assert.Len(rooms, 1) {
		assert.Equal("dice night", rooms[0].Name)
		assert.True(rooms[0].CanJoin())
	}

	rooms, err = svc.List(context.Background(), "")
	assert.NoError(err)
	assert.Empty(rooms)
}

func TestJoin_PasswordRejection(t *testing.T) {
	assert := assert.New(t)
	svc, _ := newRoomServer(t)

	_, err := svc.Join(context.Background(), 1, "wrong")
	var apiErr *api.Error
	if assert.ErrorAs(err, &apiErr) {
		assert.Equal("Invalid room password.", apiErr.Message)
	}

	room, err := svc.Join(context.Background(), 1, "secret")
	assert.NoError(err)
	assert.Equal(3, room.CurrentPlayers)
}

func TestCanJoin(t *testing.T) {
	cases := []struct {
		name string
		room Room
		want bool
	}{
		{name: "open", room: Room{Active: true, MaxPlayers: 6, CurrentPlayers: 2}, want: true},
		{name: "full", room: Room{Active: true, MaxPlayers: 6, CurrentPlayers: 6}, want: false},
		{name: "inactive", room: Room{Active: false, MaxPlayers: 6, CurrentPlayers: 0}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.room.CanJoin(); got != tc.want {
				t.Fatalf("CanJoin: got %v, want %v", got, tc.want)
			}
		})
	}
}
