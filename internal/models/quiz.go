package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Quiz struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"deleted_at" gorm:"index"`
	CourseID           uint           `json:"course_id" gorm:"index;not null"`
	Title              string         `json:"title" gorm:"not null"`
	Description        string         `json:"description"`
	MaxAttempts        int            `json:"max_attempts" gorm:"default:1"`
	TimeLimitMinutes   *int           `json:"time_limit_minutes"`
	ShuffleQuestions   bool           `json:"shuffle_questions" gorm:"default:false"`
	ShowResults        bool           `json:"show_results" gorm:"default:true"`
	ShowCorrectAnswers bool           `json:"show_correct_answers" gorm:"default:false"`
	AllowReview        bool           `json:"allow_review" gorm:"default:true"`
	QuestionNavigation bool           `json:"question_navigation" gorm:"default:true"`
	Questions          []QuizQuestion `json:"questions,omitempty" gorm:"foreignKey:QuizID"`
}

const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeTrueFalse      = "true_false"
	QuestionTypeShortAnswer    = "short_answer"
)

type QuizQuestion struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at" gorm:"index"`
	QuizID        uint           `json:"quiz_id" gorm:"index;not null"`
	Text          string         `json:"text" gorm:"not null"`
	Type          string         `json:"type" gorm:"default:multiple_choice"`
	Options       OptionList     `json:"options" gorm:"type:jsonb"`
	OrderIndex    int            `json:"order_index" gorm:"default:0"`
	Points        int            `json:"points" gorm:"default:1"`
	CorrectAnswer string         `json:"correct_answer"`
}

type QuizAttempt struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at" gorm:"index"`
	QuizID      uint           `json:"quiz_id" gorm:"index;not null"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	Answers     AnswerMap      `json:"answers" gorm:"type:jsonb"`
	Score       int            `json:"score"`
	MaxScore    int            `json:"max_score"`
	StartedAt   time.Time      `json:"started_at"`
	SubmittedAt *time.Time     `json:"submitted_at"`
}

// OptionList stores a question's answer options as a JSON column.
type OptionList []string

func (o OptionList) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (o *OptionList) Scan(value interface{}) error {
	return scanJSON(value, o)
}

// AnswerMap stores a student's answers keyed by question id.
type AnswerMap map[uint]string

func (a AnswerMap) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (a *AnswerMap) Scan(value interface{}) error {
	return scanJSON(value, a)
}

func scanJSON(value, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}
