// internal/game/defaults.go
package game

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/quizboard/internal/models"
)

const (
	// DefaultCols and DefaultRows size the board of a fresh room.
	DefaultCols = 5
	DefaultRows = 5

	// MinDim and MaxDim bound the board dimensions accepted by resize and loadQuiz.
	MinDim = 2
	MaxDim = 10

	// MaxTeams caps the scoreboard length.
	MaxTeams = 12

	// MaxNameLen applies to team and participant names (in runes).
	MaxNameLen = 20

	// QuizVersion is the envelope version produced by exports.
	QuizVersion = 1
)

// PlaceholderCategory is the generated title of column col (0-based).
func PlaceholderCategory(col int) string {
	return fmt.Sprintf("Category %d", col+1)
}

// PlaceholderClue is the generated clue for a cell that has never been edited.
func PlaceholderClue(col, row int) models.Clue {
	return models.Clue{
		Question: fmt.Sprintf("Question %d.%d", col+1, row+1),
		Answer:   fmt.Sprintf("Answer %d.%d", col+1, row+1),
		Value:    (row + 1) * 100,
	}
}

// NewBoard builds a cols x rows board of placeholders.
func NewBoard(cols, rows int) models.Board {
	b := models.Board{
		Cols:       cols,
		Rows:       rows,
		Categories: make([]string, cols),
		Clues:      make([][]models.Clue, cols),
	}
	for c := 0; c < cols; c++ {
		b.Categories[c] = PlaceholderCategory(c)
		b.Clues[c] = make([]models.Clue, rows)
		for r := 0; r < rows; r++ {
			b.Clues[c][r] = PlaceholderClue(c, r)
		}
	}
	return b
}

// NewGameState is the state every room starts with: lobby phase, default board, two empty teams.
// Team ids come from e.NewID.
func (e *Engine) NewGameState(now time.Time) *models.GameState {
	return &models.GameState{
		Phase: models.PhaseLobby,
		Board: NewBoard(DefaultCols, DefaultRows),
		Scores: []models.Team{
			{ID: e.NewID(), Name: "Team 1"},
			{ID: e.NewID(), Name: "Team 2"},
		},
		Current:   models.ClosedClue(),
		UpdatedAt: now.UnixMilli(),
	}
}
