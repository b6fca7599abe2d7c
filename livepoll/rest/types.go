package rest

import "time"

// CreatePollRequest is the request body for creating a poll room.
type CreatePollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Password string   `json:"password,omitempty"`
}

// CreatePollResponse describes the room the service created.
type CreatePollResponse struct {
	RoomID   string   `json:"roomId"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// PublicRoom is one entry of the public room listing.
type PublicRoom struct {
	RoomID      string    `json:"roomId"`
	Question    string    `json:"question"`
	TotalVotes  int       `json:"totalVotes"`
	CreatedAt   time.Time `json:"createdAt"`
	IsActive    bool      `json:"isActive"`
	HasPassword bool      `json:"hasPassword"`
}

// PublicRoomsResponse contains the public room listing.
type PublicRoomsResponse struct {
	Rooms []PublicRoom `json:"rooms"`
	Total int          `json:"total"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
