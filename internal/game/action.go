// internal/game/action.go
package game

import "github.com/jason-s-yu/quizboard/internal/models"

// ActionType names a state transition the host can request.
type ActionType string

const (
	ActionStart        ActionType = "start"
	ActionOpen         ActionType = "open"
	ActionReveal       ActionType = "reveal"
	ActionClose        ActionType = "close"
	ActionMarkUsed     ActionType = "markUsed"
	ActionScoreDelta   ActionType = "scoreDelta"
	ActionRenameTeam   ActionType = "renameTeam"
	ActionScoreSet     ActionType = "scoreSet"
	ActionEditCategory ActionType = "editCategory"
	ActionEditClue     ActionType = "editClue"
	ActionResize       ActionType = "resize"
	ActionResetUsed    ActionType = "resetUsed"
	ActionLoadQuiz     ActionType = "loadQuiz"
	ActionSetPassword  ActionType = "setPassword"
)

// Action is the decoded form of a host:action payload. Which fields are
// required depends on Type; pointers distinguish "absent" from zero.
type Action struct {
	Type ActionType `json:"type"`

	Col  *int  `json:"col,omitempty"`
	Row  *int  `json:"row,omitempty"`
	Used *bool `json:"used,omitempty"`

	TeamID string  `json:"teamId,omitempty"`
	Delta  *int    `json:"delta,omitempty"`
	Name   *string `json:"name,omitempty"`

	Question *string `json:"q,omitempty"`
	Answer   *string `json:"a,omitempty"`
	Value    *int    `json:"value,omitempty"`

	Cols *int `json:"cols,omitempty"`
	Rows *int `json:"rows,omitempty"`

	Scores []models.Team `json:"scores,omitempty"`
	Quiz   *models.Quiz  `json:"quiz,omitempty"`

	Password *string `json:"password,omitempty"`
}

// Known reports whether t is one of the supported action kinds.
func (t ActionType) Known() bool {
	switch t {
	case ActionStart, ActionOpen, ActionReveal, ActionClose, ActionMarkUsed,
		ActionScoreDelta, ActionRenameTeam, ActionScoreSet, ActionEditCategory,
		ActionEditClue, ActionResize, ActionResetUsed, ActionLoadQuiz, ActionSetPassword:
		return true
	}
	return false
}

// Touches reports whether the action changes the GameState document
// (setPassword only touches room secrets).
func (t ActionType) Touches() bool {
	return t.Known() && t != ActionSetPassword
}

func (a Action) cell() (int, int, bool) {
	if a.Col == nil || a.Row == nil {
		return 0, 0, false
	}
	return *a.Col, *a.Row, true
}
