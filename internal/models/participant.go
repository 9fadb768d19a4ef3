// internal/models/participant.go
package models

import "time"

// Role of a participant inside a room.
type Role string

const (
	RoleHost      Role = "host"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// Participant is a room member keyed by the client's durable identity.
// The record survives disconnects so a returning identity keeps its ready flag.
type Participant struct {
	Identity    string    `json:"clientId"`
	DisplayName string    `json:"name"`
	Role        Role      `json:"role"`
	Ready       bool      `json:"ready"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}
