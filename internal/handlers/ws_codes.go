// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the session gateway.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client connected without the quizboard subprotocol.
	RoomClosedError     websocket.StatusCode = 3004 // The room this connection was bound to was swept or deleted.
)

// Subprotocol is the websocket subprotocol clients must negotiate.
const Subprotocol = "quizboard"
