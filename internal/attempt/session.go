package attempt

import (
	"sync"

	"lms-system/internal/models"
)

type State string

const (
	StateNotStarted State = "not_started"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
)

// Session holds one student's in-memory view of one quiz: the fixed question
// order for this visit, past attempts, and the live attempt if one is
// running. A session lives until the student reloads the quiz, which builds
// a fresh one (and a fresh shuffle).
type Session struct {
	mu sync.Mutex

	UserID uint
	Quiz   *models.Quiz

	// questions carry the order fixed at load time; shuffled once if the
	// quiz asks for it.
	questions []models.QuizQuestion
	history   []models.QuizAttempt // newest first, submitted attempts only
	enrolled  bool

	current    *models.QuizAttempt
	answers    models.AnswerMap
	index      int
	submitting bool
	countdown  *Countdown

	lastResult *Result
}

// Result is the post-submission view. Correct answers are only populated
// when the quiz reveals them.
type Result struct {
	Score       int                  `json:"score"`
	MaxScore    int                  `json:"max_score"`
	Questions   []models.QuestionDTO `json:"questions,omitempty"`
	UserAnswers models.AnswerMap     `json:"user_answers,omitempty"`
}

func (s *Session) state() State {
	switch {
	case s.submitting:
		return StateSubmitting
	case s.current != nil:
		return StateActive
	case s.lastResult != nil:
		return StateCompleted
	default:
		return StateNotStarted
	}
}

func (s *Session) attemptsRemaining() int {
	remaining := s.Quiz.MaxAttempts - len(s.history)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *Session) bestScore() int {
	best := 0
	for _, attempt := range s.history {
		if attempt.Score > best {
			best = attempt.Score
		}
	}
	return best
}

func (s *Session) maxScore() int {
	total := 0
	for _, q := range s.questions {
		total += q.Points
	}
	return total
}

// View is the session snapshot handed to the client. Correct answers never
// appear here; they only surface through Result.
type View struct {
	State              State                      `json:"state"`
	QuizID             uint                       `json:"quiz_id"`
	Title              string                     `json:"title"`
	Enrolled           bool                       `json:"enrolled"`
	Questions          []models.QuestionDTO       `json:"questions"`
	Attempts           []models.AttemptSummaryDTO `json:"attempts"`
	AttemptsRemaining  int                        `json:"attempts_remaining"`
	BestScore          int                        `json:"best_score"`
	MaxScore           int                        `json:"max_score"`
	CurrentIndex       int                        `json:"current_index"`
	AnsweredCount      int                        `json:"answered_count"`
	ProgressPercent    float64                    `json:"progress_percent"`
	TimeLeftSeconds    *int                       `json:"time_left_seconds,omitempty"`
	QuestionNavigation bool                       `json:"question_navigation"`
	AllowReview        bool                       `json:"allow_review"`
}

func (s *Session) view() View {
	questions := make([]models.QuestionDTO, len(s.questions))
	for i, q := range s.questions {
		questions[i] = q.ToDTO(false)
	}

	attempts := make([]models.AttemptSummaryDTO, len(s.history))
	for i, a := range s.history {
		attempts[i] = a.ToSummaryDTO()
	}

	view := View{
		State:              s.state(),
		QuizID:             s.Quiz.ID,
		Title:              s.Quiz.Title,
		Enrolled:           s.enrolled,
		Questions:          questions,
		Attempts:           attempts,
		AttemptsRemaining:  s.attemptsRemaining(),
		BestScore:          s.bestScore(),
		MaxScore:           s.maxScore(),
		CurrentIndex:       s.index,
		AnsweredCount:      len(s.answers),
		QuestionNavigation: s.Quiz.QuestionNavigation,
		AllowReview:        s.Quiz.AllowReview,
	}

	if len(s.questions) > 0 && s.current != nil {
		view.ProgressPercent = float64(s.index+1) / float64(len(s.questions)) * 100
	}

	if s.countdown != nil && s.current != nil {
		left := s.countdown.Remaining()
		view.TimeLeftSeconds = &left
	}

	return view
}
