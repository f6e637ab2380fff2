package domain

import "time"

// Module is a learning module. Modules are ordered; a module can only be
// started once the previous one (by Order) has a finished session.
type Module struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Icon            string `json:"icon"`
	Label           string `json:"label"`
	Order           int    `json:"order"`
	Active          bool   `json:"active"`
	TimePerQuestion int    `json:"timePerQuestion"` // seconds
}

// Question is an MCQ question with exactly four options and one correct index.
type Question struct {
	ID          string   `json:"id"`
	ModuleID    string   `json:"moduleId"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Correct     int      `json:"correct"` // index 0-3
	Explanation string   `json:"explanation"`
	Active      bool     `json:"active"`
}

// SafeQuestion is the player-facing view of a Question: the correct index and
// explanation are stripped until the answer is submitted.
type SafeQuestion struct {
	ID       string   `json:"id"`
	ModuleID string   `json:"moduleId"`
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
}

// Safe strips the answer key from a question.
func (q Question) Safe() SafeQuestion {
	return SafeQuestion{
		ID:       q.ID,
		ModuleID: q.ModuleID,
		Prompt:   q.Prompt,
		Options:  q.Options,
	}
}

// GameSession is one attempt at a module by one user. Counters only grow
// while the session is unfinished; finish is the single terminal transition.
type GameSession struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	ModuleID       string     `json:"moduleId"`
	Score          int        `json:"score"`
	CorrectAnswers int        `json:"correctAnswers"`
	TotalAnswered  int        `json:"totalAnswered"`
	Streak         int        `json:"streak"`
	MaxStreak      int        `json:"maxStreak"`
	Nota           *float64   `json:"nota"` // 0-10 grade, nil until finished
	Finished       bool       `json:"finished"`
	IsBest         bool       `json:"isBest"`
	FinishedAt     *time.Time `json:"finishedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// TimeoutOption is the selected_option value recorded when a question timed
// out without an answer.
const TimeoutOption = -1

// Answer is an immutable record of one submission. At most one Answer exists
// per (SessionID, QuestionID) pair.
type Answer struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	QuestionID     string    `json:"questionId"`
	SelectedOption int       `json:"selectedOption"` // -1 denotes timeout
	IsCorrect      bool      `json:"isCorrect"`
	Points         int       `json:"points"`
	TimeSpent      int       `json:"timeSpent"` // seconds
	CreatedAt      time.Time `json:"createdAt"`
}
