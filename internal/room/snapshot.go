// internal/room/snapshot.go
package room

import (
	"sort"

	"github.com/jason-s-yu/quizboard/internal/models"
)

// Snapshot is the public view of a room pushed after every state-affecting event.
// Secrets (password hash, credentials) never appear in it.
type Snapshot struct {
	Version           uint64            `json:"version"`
	Code              string            `json:"code"`
	Phase             models.Phase      `json:"phase"`
	State             *models.GameState `json:"state"`
	Participants      []ParticipantView `json:"participants"`
	Connections       int               `json:"connections"`
	PasswordProtected bool              `json:"passwordProtected"`
	CreatedAt         int64             `json:"createdAt"`
	LastActivityAt    int64             `json:"lastActivityAt"`
}

// ParticipantView adds presence and authority flags to a participant record.
type ParticipantView struct {
	models.Participant
	IsHost bool `json:"isHost"`
	Online bool `json:"online"`
}

// Summary is the lobby-card view served over plain HTTP. It carries no board.
type Summary struct {
	Code              string       `json:"code"`
	Phase             models.Phase `json:"phase"`
	Participants      int          `json:"participants"`
	Connections       int          `json:"connections"`
	PasswordProtected bool         `json:"passwordProtected"`
	CreatedAt         int64        `json:"createdAt"`
	LastActivityAt    int64        `json:"lastActivityAt"`
}

// snapshotLocked builds the host view (full board) or the audience view.
// Assumes lock is held.
func (r *Room) snapshotLocked(forHost bool) *Snapshot {
	online := make(map[string]bool, len(r.conns))
	for _, c := range r.conns {
		online[c.identity] = true
	}

	views := make([]ParticipantView, 0, len(r.participants))
	for _, p := range r.participants {
		views = append(views, ParticipantView{
			Participant: *p,
			IsHost:      p.Identity == r.hostIdentity,
			Online:      online[p.Identity],
		})
	}
	sort.SliceStable(views, func(i, j int) bool {
		return r.joinOrder[views[i].Identity] < r.joinOrder[views[j].Identity]
	})

	state := r.state
	if !forHost {
		state = audienceState(r.state)
	}

	return &Snapshot{
		Version:           r.version,
		Code:              r.Code,
		Phase:             r.state.Phase,
		State:             state,
		Participants:      views,
		Connections:       len(r.conns),
		PasswordProtected: r.passwordHash != "",
		CreatedAt:         r.CreatedAt.UnixMilli(),
		LastActivityAt:    r.lastActivityAt.UnixMilli(),
	}
}

// audienceState blanks every answer except the one the host has revealed.
func audienceState(s *models.GameState) *models.GameState {
	out := s.Clone()
	for c := range out.Board.Clues {
		for r := range out.Board.Clues[c] {
			if out.Current.ShowAnswer && out.Current.At(c, r) {
				continue
			}
			out.Board.Clues[c][r].Answer = ""
		}
	}
	return out
}
