// Package rooms is request/response glue for the room lifecycle API.
// No state lives here; every call re-reads the server.
package rooms

import (
	"context"
	"fmt"
	"net/url"

	"github.com/demerle/liars-dice/internal/api"
)

// Room mirrors the backend's room listing payload.
type Room struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	HasPassword     bool   `json:"hasPassword"`
	MaxPlayers      int    `json:"maxPlayers"`
	CurrentPlayers  int    `json:"currentPlayers"`
	CreatorUsername string `json:"creatorUsername,omitempty"`
	Active          bool   `json:"isActive"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// CanJoin reports whether the room is accepting players.
func (r Room) CanJoin() bool {
	return r.Active && r.CurrentPlayers < r.MaxPlayers
}

type CreateRequest struct {
	Name       string `json:"name"`
	Password   string `json:"password,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

type Service struct {
	api *api.Client
}

func NewService(client *api.Client) *Service {
	return &Service{api: client}
}

// List returns available rooms, optionally filtered by a search query.
func (s *Service) List(ctx context.Context, search string) ([]Room, error) {
	path := "/rooms"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var rooms []Room
	if err := s.api.Get(ctx, path, &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Room, error) {
	var room Room
	if err := s.api.Post(ctx, "/rooms", req, &room); err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

func (s *Service) Details(ctx context.Context, roomID int64) (Room, error) {
	var room Room
	if err := s.api.Get(ctx, fmt.Sprintf("/rooms/%d", roomID), &room); err != nil {
		return Room{}, fmt.Errorf("room details: %w", err)
	}
	return room, nil
}

func (s *Service) Join(ctx context.Context, roomID int64, password string) (Room, error) {
	var body any
	if password != "" {
		body = map[string]string{"password": password}
	}
	var room Room
	if err := s.api.Post(ctx, fmt.Sprintf("/rooms/%d/join", roomID), body, &room); err != nil {
		return Room{}, fmt.Errorf("join room: %w", err)
	}
	return room, nil
}

func (s *Service) Leave(ctx context.Context, roomID int64) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("/rooms/%d/leave", roomID), nil); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	return nil
}

// Delete removes a room; the server only allows its creator to do this.
func (s *Service) Delete(ctx context.Context, roomID int64) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("/rooms/%d", roomID), nil); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
