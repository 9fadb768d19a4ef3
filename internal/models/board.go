// internal/models/board.go
package models

// Clue is a single board cell.
type Clue struct {
	Question string `json:"q"`
	Answer   string `json:"a"`
	Value    int    `json:"value"`
	Used     bool   `json:"used"`
}

// Board is a grid of clues addressed as Clues[col][row].
// len(Categories) == Cols, len(Clues) == Cols and every column holds Rows clues.
type Board struct {
	Cols       int      `json:"cols"`
	Rows       int      `json:"rows"`
	Categories []string `json:"categories"`
	Clues      [][]Clue `json:"clues"`
}

// Quiz is the envelope a board is imported and exported in.
type Quiz struct {
	Version int   `json:"version"`
	Board   Board `json:"board"`
}

// InBounds reports whether (col,row) addresses an existing clue.
func (b *Board) InBounds(col, row int) bool {
	if col < 0 || col >= b.Cols || col >= len(b.Clues) {
		return false
	}
	return row >= 0 && row < b.Rows && row < len(b.Clues[col])
}

// WellFormed checks the dimension invariants of the board.
func (b *Board) WellFormed() bool {
	if b.Cols <= 0 || b.Rows <= 0 {
		return false
	}
	if len(b.Categories) != b.Cols || len(b.Clues) != b.Cols {
		return false
	}
	for _, col := range b.Clues {
		if len(col) != b.Rows {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the board.
func (b Board) Clone() Board {
	out := Board{
		Cols:       b.Cols,
		Rows:       b.Rows,
		Categories: append([]string(nil), b.Categories...),
		Clues:      make([][]Clue, len(b.Clues)),
	}
	for c, col := range b.Clues {
		out.Clues[c] = append([]Clue(nil), col...)
	}
	return out
}
