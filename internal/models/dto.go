package models

import "time"

type QuestionDTO struct {
	ID            uint       `json:"id"`
	Text          string     `json:"text"`
	Type          string     `json:"type"`
	Options       OptionList `json:"options"`
	OrderIndex    int        `json:"order_index"`
	Points        int        `json:"points"`
	CorrectAnswer string     `json:"correct_answer,omitempty"` // Only in results view
}

// ToDTO renders a question for the client. The correct answer is withheld
// unless reveal is set (results view with show_correct_answers enabled).
func (q QuizQuestion) ToDTO(reveal bool) QuestionDTO {
	dto := QuestionDTO{
		ID:         q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Options:    q.Options,
		OrderIndex: q.OrderIndex,
		Points:     q.Points,
	}
	if reveal {
		dto.CorrectAnswer = q.CorrectAnswer
	}
	return dto
}

type AttemptSummaryDTO struct {
	ID          uint       `json:"id"`
	Score       int        `json:"score"`
	MaxScore    int        `json:"max_score"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

func (a QuizAttempt) ToSummaryDTO() AttemptSummaryDTO {
	return AttemptSummaryDTO{
		ID:          a.ID,
		Score:       a.Score,
		MaxScore:    a.MaxScore,
		SubmittedAt: a.SubmittedAt,
	}
}
