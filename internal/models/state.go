// internal/models/state.go
package models

// Phase is the coarse stage a room is in.
type Phase string

const (
	PhaseLobby Phase = "lobby"
	PhaseGame  Phase = "game"
)

// Team is a scoring entry. ID never changes once assigned.
type Team struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// CurrentClue is the clue currently shown on every screen.
// Col and Row are nil whenever Open is false.
type CurrentClue struct {
	Open       bool `json:"open"`
	Col        *int `json:"col"`
	Row        *int `json:"row"`
	ShowAnswer bool `json:"showAnswer"`
}

// ClosedClue is the canonical closed value of CurrentClue.
func ClosedClue() CurrentClue {
	return CurrentClue{}
}

// OpenClue returns an open CurrentClue pointing at (col,row).
func OpenClue(col, row int) CurrentClue {
	return CurrentClue{Open: true, Col: &col, Row: &row}
}

// At reports whether the current clue is open at (col,row).
func (c CurrentClue) At(col, row int) bool {
	return c.Open && c.Col != nil && c.Row != nil && *c.Col == col && *c.Row == row
}

// Clone copies the clue pointer fields.
func (c CurrentClue) Clone() CurrentClue {
	if !c.Open || c.Col == nil || c.Row == nil {
		return CurrentClue{}
	}
	out := OpenClue(*c.Col, *c.Row)
	out.ShowAnswer = c.ShowAnswer
	return out
}

// GameState is the shared board/scoreboard document of a room.
// A published GameState is never modified; mutations work on a Clone.
type GameState struct {
	Phase     Phase       `json:"phase"`
	Board     Board       `json:"board"`
	Scores    []Team      `json:"scores"`
	Current   CurrentClue `json:"current"`
	UpdatedAt int64       `json:"updatedAt"`
}

// Clone returns a deep copy of the state.
func (s *GameState) Clone() *GameState {
	return &GameState{
		Phase:     s.Phase,
		Board:     s.Board.Clone(),
		Scores:    append([]Team(nil), s.Scores...),
		Current:   s.Current.Clone(),
		UpdatedAt: s.UpdatedAt,
	}
}

// Team returns the index of the team with the given id, or -1.
func (s *GameState) Team(id string) int {
	for i, t := range s.Scores {
		if t.ID == id {
			return i
		}
	}
	return -1
}
