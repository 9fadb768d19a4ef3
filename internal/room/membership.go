// internal/room/membership.go
package room

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jason-s-yu/quizboard/internal/auth"
	"github.com/jason-s-yu/quizboard/internal/game"
	"github.com/jason-s-yu/quizboard/internal/models"
	"github.com/sirupsen/logrus"
)

// maxIdentityLen bounds client-supplied identity tokens.
const maxIdentityLen = 64

// JoinRequest describes who is joining and what they present.
type JoinRequest struct {
	Identity    string
	DisplayName string
	Role        models.Role
	Password    string

	// HostCredential is set by the gateway once it has verified a host
	// credential bound to this room.
	HostCredential bool
}

// JoinResult is what the joining caller receives.
type JoinResult struct {
	Participant models.Participant
	Snapshot    *Snapshot
	IsHost      bool
}

// ValidIdentity reports whether id is usable as a durable client identity.
func ValidIdentity(id string) bool {
	if id == "" || len(id) > maxIdentityLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) < 0
}

// Join admits req.Identity and, when conn is non-nil, subscribes conn to the room.
//
// The host (by identity or by credential) is always admitted. Everyone else must
// match the room password if one is set; a mismatch fails with ErrWrongPassword so
// the caller can re-prompt on the same connection. A returning identity updates its
// record in place.
func (r *Room) Join(req JoinRequest, conn *Connection) (JoinResult, error) {
	if !ValidIdentity(req.Identity) {
		return JoinResult{}, ErrBadIdentity
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return JoinResult{}, ErrRoomNotFound
	}
	privileged := req.HostCredential || r.hostIdentity == "" || req.Identity == r.hostIdentity
	hash := r.passwordHash
	r.mu.Unlock()

	// Password verification is CPU bound; keep it off the room lock.
	if !privileged && hash != "" {
		ok, err := auth.CheckPassword(req.Password, hash)
		if err != nil {
			return JoinResult{}, fmt.Errorf("%w: %v", game.ErrActionFailed, err)
		}
		if !ok {
			return JoinResult{}, ErrWrongPassword
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinResult{}, ErrRoomNotFound
	}
	isHost := req.HostCredential || r.hostIdentity == "" || req.Identity == r.hostIdentity
	if !isHost && r.passwordHash != hash {
		// The password changed while we were hashing.
		return JoinResult{}, ErrWrongPassword
	}

	if isHost && r.hostIdentity != req.Identity {
		if prev, ok := r.participants[r.hostIdentity]; ok {
			prev.Role = models.RolePlayer
		}
		r.log.WithField("identity", req.Identity).Infof("host authority moved from %q", r.hostIdentity)
		r.hostIdentity = req.Identity
	}

	role := req.Role
	if role != models.RolePlayer && role != models.RoleSpectator {
		role = models.RolePlayer
	}
	if isHost {
		role = models.RoleHost
	}
	p := r.upsertParticipantLocked(req.Identity, req.DisplayName, role, isHost)

	if conn != nil {
		conn.identity = req.Identity
		r.conns[conn.ID] = conn
	}

	r.touchLocked()
	r.broadcastLocked()

	r.log.WithFields(logrus.Fields{
		"identity": req.Identity,
		"role":     p.Role,
	}).Info("participant joined")

	return JoinResult{
		Participant: *p,
		Snapshot:    r.snapshotLocked(isHost),
		IsHost:      isHost,
	}, nil
}

// upsertParticipantLocked creates or refreshes the record for identity. Assumes lock is held.
func (r *Room) upsertParticipantLocked(identity, name string, role models.Role, isHost bool) *models.Participant {
	fallback := "Player"
	if isHost {
		fallback = "Host"
	}
	now := r.now()
	if p, ok := r.participants[identity]; ok {
		p.DisplayName = game.CleanName(name, p.DisplayName)
		p.Role = role
		p.LastSeenAt = now
		return p
	}
	p := &models.Participant{
		Identity:    identity,
		DisplayName: game.CleanName(name, fallback),
		Role:        role,
		LastSeenAt:  now,
	}
	r.participants[identity] = p
	r.joinOrder[identity] = len(r.joinOrder)
	return p
}

// Detach unsubscribes conn, keeping the participant record for reconnection.
// Used for both an explicit leave and a dropped transport.
func (r *Room) Detach(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		return
	}
	delete(r.conns, conn.ID)
	if p, ok := r.participants[conn.identity]; ok {
		p.LastSeenAt = r.now()
	}
	if r.closed {
		return
	}
	r.touchLocked()
	r.broadcastLocked()
	r.log.WithField("identity", conn.identity).Info("participant detached")
}

// SetReady toggles the lobby-ready flag of identity. Only valid in the lobby phase.
func (r *Room) SetReady(identity string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	p, ok := r.participants[identity]
	if !ok {
		return ErrPlayerNotFound
	}
	if r.state.Phase != models.PhaseLobby {
		return game.ErrNotInLobby
	}
	p.Ready = ready
	p.LastSeenAt = r.now()
	r.touchLocked()
	r.broadcastLocked()
	return nil
}
