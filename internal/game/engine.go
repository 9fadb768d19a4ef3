// internal/game/engine.go
package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/quizboard/internal/models"
)

// Engine validates and applies host actions to a GameState.
// Apply never touches its input: it works on a clone and returns the clone
// only when every check passed, so callers can swap the result in atomically.
type Engine struct {
	Now   func() time.Time
	NewID func() string
}

// NewEngine returns an Engine backed by the wall clock and random uuids.
func NewEngine() *Engine {
	return &Engine{Now: time.Now, NewID: uuid.NewString}
}

// Apply runs a against cur and returns the next state.
// setPassword is not a GameState transition and is rejected here; rooms handle it.
func (e *Engine) Apply(cur *models.GameState, a Action) (*models.GameState, error) {
	if !a.Type.Touches() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}

	next := cur.Clone()
	var err error
	switch a.Type {
	case ActionStart:
		err = start(next)
	case ActionOpen:
		err = open(next, a)
	case ActionReveal:
		err = reveal(next)
	case ActionClose:
		next.Current = models.ClosedClue()
	case ActionMarkUsed:
		err = markUsed(next, a)
	case ActionScoreDelta:
		err = scoreDelta(next, a)
	case ActionRenameTeam:
		err = renameTeam(next, a)
	case ActionScoreSet:
		err = e.scoreSet(next, a)
	case ActionEditCategory:
		err = editCategory(next, a)
	case ActionEditClue:
		err = editClue(next, a)
	case ActionResize:
		err = resize(next, a)
	case ActionResetUsed:
		for c := range next.Board.Clues {
			for r := range next.Board.Clues[c] {
				next.Board.Clues[c][r].Used = false
			}
		}
	case ActionLoadQuiz:
		err = loadQuiz(next, a.Quiz)
	}
	if err != nil {
		return nil, err
	}

	next.UpdatedAt = e.Now().UnixMilli()
	return next, nil
}

func start(s *models.GameState) error {
	if s.Phase != models.PhaseLobby {
		return ErrNotInLobby
	}
	s.Phase = models.PhaseGame
	s.Current = models.ClosedClue()
	return nil
}

// open shows a clue. Opening a different clue while one is open closes the old one implicitly.
func open(s *models.GameState, a Action) error {
	if s.Phase != models.PhaseGame {
		return ErrNotInGame
	}
	col, row, ok := a.cell()
	if !ok || !s.Board.InBounds(col, row) {
		return fmt.Errorf("%w: (%v,%v)", ErrBadCell, deref(a.Col), deref(a.Row))
	}
	if s.Board.Clues[col][row].Used {
		return ErrUsed
	}
	if s.Current.At(col, row) {
		return ErrAlreadyOpen
	}
	s.Current = models.OpenClue(col, row)
	return nil
}

func reveal(s *models.GameState) error {
	if !s.Current.Open {
		return ErrNoCurrent
	}
	s.Current.ShowAnswer = true
	return nil
}

func markUsed(s *models.GameState, a Action) error {
	col, row, ok := a.cell()
	if !ok || !s.Board.InBounds(col, row) {
		return fmt.Errorf("%w: (%v,%v)", ErrBadCell, deref(a.Col), deref(a.Row))
	}
	used := a.Used != nil && *a.Used
	s.Board.Clues[col][row].Used = used
	return nil
}

func scoreDelta(s *models.GameState, a Action) error {
	if a.Delta == nil {
		return fmt.Errorf("%w: delta is required", ErrBadArgs)
	}
	i := s.Team(a.TeamID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTeamNotFound, a.TeamID)
	}
	s.Scores[i].Score += *a.Delta
	return nil
}

func renameTeam(s *models.GameState, a Action) error {
	i := s.Team(a.TeamID)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrTeamNotFound, a.TeamID)
	}
	if a.Name == nil {
		return ErrBadName
	}
	name := CleanName(*a.Name, "")
	if name == "" {
		return ErrBadName
	}
	s.Scores[i].Name = name
	return nil
}

// scoreSet replaces the scoreboard. Entries carrying an id must name an existing team;
// entries without one become new teams. Teams missing from the list are dropped.
func (e *Engine) scoreSet(s *models.GameState, a Action) error {
	if len(a.Scores) == 0 || len(a.Scores) > MaxTeams {
		return fmt.Errorf("%w: need 1..%d teams", ErrBadScores, MaxTeams)
	}
	seen := make(map[string]bool, len(a.Scores))
	out := make([]models.Team, 0, len(a.Scores))
	for _, t := range a.Scores {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			id = e.NewID()
		} else if s.Team(id) < 0 {
			return fmt.Errorf("%w: %q", ErrTeamNotFound, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate team %q", ErrBadScores, id)
		}
		seen[id] = true
		name := CleanName(t.Name, "")
		if name == "" {
			return ErrBadName
		}
		out = append(out, models.Team{ID: id, Name: name, Score: t.Score})
	}
	s.Scores = out
	return nil
}

func editCategory(s *models.GameState, a Action) error {
	if a.Col == nil || *a.Col < 0 || *a.Col >= s.Board.Cols {
		return fmt.Errorf("%w: %v", ErrBadCol, deref(a.Col))
	}
	name := ""
	if a.Name != nil {
		name = strings.TrimSpace(*a.Name)
	}
	s.Board.Categories[*a.Col] = name
	return nil
}

func editClue(s *models.GameState, a Action) error {
	col, row, ok := a.cell()
	if !ok || !s.Board.InBounds(col, row) {
		return fmt.Errorf("%w: (%v,%v)", ErrBadCell, deref(a.Col), deref(a.Row))
	}
	if a.Value != nil && *a.Value < 0 {
		return fmt.Errorf("%w: %d", ErrBadValue, *a.Value)
	}
	clue := &s.Board.Clues[col][row]
	if a.Question != nil {
		clue.Question = strings.TrimSpace(*a.Question)
	}
	if a.Answer != nil {
		clue.Answer = strings.TrimSpace(*a.Answer)
	}
	if a.Value != nil {
		clue.Value = *a.Value
	}
	return nil
}

// resize rebuilds the board at the clamped size. Cells and categories still in range
// keep their content; new ones get placeholders.
func resize(s *models.GameState, a Action) error {
	if a.Cols == nil || a.Rows == nil {
		return fmt.Errorf("%w: cols and rows are required", ErrBadArgs)
	}
	cols := clamp(*a.Cols, MinDim, MaxDim)
	rows := clamp(*a.Rows, MinDim, MaxDim)

	old := s.Board
	b := NewBoard(cols, rows)
	for c := 0; c < cols; c++ {
		if c < len(old.Categories) {
			b.Categories[c] = old.Categories[c]
		}
		for r := 0; r < rows; r++ {
			if old.InBounds(c, r) {
				b.Clues[c][r] = old.Clues[c][r]
			}
		}
	}
	s.Board = b
	s.Current = models.ClosedClue()
	return nil
}

// loadQuiz swaps in a new board and zeroes the scoreboard, keeping team ids and names.
func loadQuiz(s *models.GameState, q *models.Quiz) error {
	if q == nil {
		return fmt.Errorf("%w: missing quiz", ErrBadQuiz)
	}
	if q.Version != 0 && q.Version != QuizVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrBadQuiz, q.Version)
	}
	b := q.Board
	if !b.WellFormed() || b.Cols > MaxDim || b.Rows > MaxDim {
		return fmt.Errorf("%w: board %dx%d is malformed", ErrBadQuiz, b.Cols, b.Rows)
	}
	s.Board = b.Clone()
	s.Current = models.ClosedClue()
	for i := range s.Scores {
		s.Scores[i].Score = 0
	}
	return nil
}

func deref(p *int) any {
	if p == nil {
		return "nil"
	}
	return *p
}
