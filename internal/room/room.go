// internal/room/room.go
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/quizboard/internal/auth"
	"github.com/jason-s-yu/quizboard/internal/cache"
	"github.com/jason-s-yu/quizboard/internal/game"
	"github.com/jason-s-yu/quizboard/internal/models"
	"github.com/sirupsen/logrus"
)

// Room is one quiz session. Every field below mu is guarded by it; all mutations
// of a room are serialized through that lock, and the GameState pointer is only
// ever swapped for a fully built successor.
type Room struct {
	Code      string
	CreatedAt time.Time

	engine  *game.Engine
	journal cache.Journal
	log     *logrus.Entry
	now     func() time.Time

	mu             sync.Mutex
	closed         bool
	lastActivityAt time.Time
	hostIdentity   string
	passwordHash   string
	participants   map[string]*models.Participant
	joinOrder      map[string]int
	state          *models.GameState
	conns          map[string]*Connection
	version        uint64
	actionIndex    int
}

func newRoom(code, hostIdentity, passwordHash string, deps roomDeps) *Room {
	now := deps.now()
	return &Room{
		Code:           code,
		CreatedAt:      now,
		engine:         deps.engine,
		journal:        deps.journal,
		log:            deps.log.WithField("room", code),
		now:            deps.now,
		lastActivityAt: now,
		hostIdentity:   hostIdentity,
		passwordHash:   passwordHash,
		participants:   make(map[string]*models.Participant),
		joinOrder:      make(map[string]int),
		state:          deps.engine.NewGameState(now),
		conns:          make(map[string]*Connection),
	}
}

// State returns the current GameState. The value must be treated as read-only.
func (r *Room) State() *models.GameState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HostIdentity returns the identity currently holding mutation rights.
func (r *Room) HostIdentity() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostIdentity
}

// LastActivity returns the time of the latest mutation, join or leave.
func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivityAt
}

// Participant returns a copy of the record for identity.
func (r *Room) Participant(identity string) (models.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[identity]
	if !ok {
		return models.Participant{}, false
	}
	return *p, true
}

// Snapshot returns the view identity is entitled to.
func (r *Room) Snapshot(identity string) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(identity != "" && identity == r.hostIdentity)
}

// Summary returns the board-less public summary.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Summary{
		Code:              r.Code,
		Phase:             r.state.Phase,
		Participants:      len(r.participants),
		Connections:       len(r.conns),
		PasswordProtected: r.passwordHash != "",
		CreatedAt:         r.CreatedAt.UnixMilli(),
		LastActivityAt:    r.lastActivityAt.UnixMilli(),
	}
}

// Apply runs a host action. Callers other than the host get ErrForbidden and the state
// is left untouched. A panic inside the engine is converted to action_failed before
// anything is swapped in.
func (r *Room) Apply(identity string, a game.Action) (*models.GameState, error) {
	if a.Type == game.ActionSetPassword {
		pw := ""
		if a.Password != nil {
			pw = *a.Password
		}
		if err := r.SetPassword(identity, pw); err != nil {
			return nil, err
		}
		return r.State(), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomNotFound
	}
	if identity == "" || identity != r.hostIdentity {
		return nil, game.ErrForbidden
	}

	next, err := r.runEngineLocked(a)
	if err != nil {
		r.log.WithFields(logrus.Fields{"action": a.Type, "error": err}).Debug("action rejected")
		return nil, err
	}

	r.state = next
	r.touchLocked()
	r.logActionLocked(identity, string(a.Type), a)
	r.broadcastLocked()
	return next, nil
}

// runEngineLocked computes the successor state without touching r.state.
// Assumes lock is held.
func (r *Room) runEngineLocked(a game.Action) (next *models.GameState, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithFields(logrus.Fields{"action": a.Type, "panic": p}).Error("action dispatch panicked")
			next, err = nil, fmt.Errorf("%w: %v", game.ErrActionFailed, p)
		}
	}()
	return r.engine.Apply(r.state, a)
}

// SetPassword sets or (with an empty pw) clears the room password. Host only.
// Hashing runs outside the room lock.
func (r *Room) SetPassword(identity, pw string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRoomNotFound
	}
	if identity == "" || identity != r.hostIdentity {
		r.mu.Unlock()
		return game.ErrForbidden
	}
	r.mu.Unlock()

	hash, err := auth.HashPassword(pw)
	if err != nil {
		return fmt.Errorf("%w: %v", game.ErrActionFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}
	if identity != r.hostIdentity {
		return game.ErrForbidden
	}
	r.passwordHash = hash
	r.touchLocked()
	r.logActionLocked(identity, string(game.ActionSetPassword), map[string]bool{"set": hash != ""})
	r.broadcastLocked()
	return nil
}

// touchLocked advances lastActivityAt, never backwards. Assumes lock is held.
func (r *Room) touchLocked() {
	if now := r.now(); now.After(r.lastActivityAt) {
		r.lastActivityAt = now
	}
}

// broadcastLocked pushes the current view to every subscribed connection.
// Pushes are non-blocking, so holding the lock here never waits on the network.
// Assumes lock is held.
func (r *Room) broadcastLocked() {
	r.version++
	var hostView, audienceView *Snapshot
	for _, c := range r.conns {
		if c.identity == r.hostIdentity {
			if hostView == nil {
				hostView = r.snapshotLocked(true)
			}
			c.PushSnapshot(hostView)
			continue
		}
		if audienceView == nil {
			audienceView = r.snapshotLocked(false)
		}
		c.PushSnapshot(audienceView)
	}
}

// logActionLocked hands the applied command to the journal without blocking.
// Assumes lock is held.
func (r *Room) logActionLocked(actor, actionType string, payload interface{}) {
	r.actionIndex++
	if r.journal == nil {
		return
	}
	rec := cache.ActionRecord{
		Room:      r.Code,
		Index:     r.actionIndex,
		Actor:     actor,
		Type:      actionType,
		Payload:   payload,
		Timestamp: r.now().UnixMilli(),
	}
	go func(j cache.Journal, rec cache.ActionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := j.Publish(ctx, rec); err != nil {
			r.log.WithError(err).Warnf("failed to journal action %d", rec.Index)
		}
	}(r.journal, rec)
}

// closeLocked marks the room gone and detaches every connection.
// Assumes lock is held; the returned connections are closed by the caller.
func (r *Room) closeLocked() []*Connection {
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for id, c := range r.conns {
		conns = append(conns, c)
		delete(r.conns, id)
	}
	return conns
}
