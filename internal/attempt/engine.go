package attempt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"lms-system/internal/models"
)

var (
	ErrSessionNotFound   = errors.New("quiz session not loaded")
	ErrNotEnrolled       = errors.New("not enrolled in this course")
	ErrAttemptsExhausted = errors.New("maximum attempts reached")
	ErrAttemptInProgress = errors.New("an attempt is already in progress")
	ErrNoActiveAttempt   = errors.New("no active attempt")
	ErrSubmitInProgress  = errors.New("submission already in progress")
	ErrUnknownQuestion   = errors.New("question does not belong to this quiz")
	ErrNoResult          = errors.New("no result available")
)

// Store is the slice of the data service the engine consumes.
type Store interface {
	GetQuiz(ctx context.Context, quizID uint) (*models.Quiz, error)
	GetQuizQuestions(ctx context.Context, quizID uint) ([]models.QuizQuestion, error)
	GetSubmittedAttempts(ctx context.Context, quizID, userID uint) ([]models.QuizAttempt, error)
	CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error
	SubmitAttempt(ctx context.Context, attemptID uint, answers models.AnswerMap, score int, submittedAt time.Time) error
	IsEnrolled(ctx context.Context, courseID, userID uint) (bool, error)
}

// Engine runs quiz sessions. Each (student, quiz) pair owns one session at a
// time; loading the quiz again replaces the session wholesale, the way a
// page reload would.
type Engine struct {
	store Store

	// tickInterval is one second in production; tests shrink it.
	tickInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store:        store,
		tickInterval: time.Second,
		sessions:     make(map[string]*Session),
	}
}

func sessionKey(quizID, userID uint) string {
	return fmt.Sprintf("%d:%d", quizID, userID)
}

// LoadSession fetches the quiz, its questions and the student's attempt
// history, and builds a fresh session. Shuffled quizzes are permuted once
// here; the order is fixed for the life of the session.
func (e *Engine) LoadSession(ctx context.Context, quizID, userID uint) (View, error) {
	quiz, err := e.store.GetQuiz(ctx, quizID)
	if err != nil {
		return View{}, err
	}

	questions, err := e.store.GetQuizQuestions(ctx, quizID)
	if err != nil {
		return View{}, err
	}
	if quiz.ShuffleQuestions {
		rand.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}

	history, err := e.store.GetSubmittedAttempts(ctx, quizID, userID)
	if err != nil {
		return View{}, err
	}

	enrolled, err := e.store.IsEnrolled(ctx, quiz.CourseID, userID)
	if err != nil {
		return View{}, err
	}

	session := &Session{
		UserID:    userID,
		Quiz:      quiz,
		questions: questions,
		history:   history,
		enrolled:  enrolled,
		answers:   models.AnswerMap{},
	}

	key := sessionKey(quizID, userID)
	e.mu.Lock()
	if old, ok := e.sessions[key]; ok {
		old.mu.Lock()
		if old.countdown != nil {
			old.countdown.Stop()
		}
		old.mu.Unlock()
	}
	e.sessions[key] = session
	e.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()
	return session.view(), nil
}

func (e *Engine) session(quizID, userID uint) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	session, ok := e.sessions[sessionKey(quizID, userID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// StartAttempt opens a new attempt, provided the student is enrolled and has
// attempts left. Attempt exhaustion is refused here, before any write is
// issued.
func (e *Engine) StartAttempt(ctx context.Context, quizID, userID uint) (View, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return View{}, ErrAttemptInProgress
	}
	if !s.enrolled {
		return View{}, ErrNotEnrolled
	}
	if len(s.history) >= s.Quiz.MaxAttempts {
		return View{}, ErrAttemptsExhausted
	}

	attempt := &models.QuizAttempt{
		QuizID:    quizID,
		UserID:    userID,
		Answers:   models.AnswerMap{},
		MaxScore:  s.maxScore(),
		StartedAt: time.Now(),
	}
	if err := e.store.CreateAttempt(ctx, attempt); err != nil {
		return View{}, err
	}

	s.current = attempt
	s.answers = models.AnswerMap{}
	s.index = 0
	s.lastResult = nil

	if s.Quiz.TimeLimitMinutes != nil {
		s.countdown = NewCountdown(*s.Quiz.TimeLimitMinutes*60, func() {
			e.autoSubmit(quizID, userID)
		})
		s.countdown.interval = e.tickInterval
		s.countdown.Start()
	}

	return s.view(), nil
}

// autoSubmit is the countdown expiry path. The countdown only ever fires
// once, and Submit's re-entrancy guard covers a race with a manual submit,
// so whichever path loses simply finds no active attempt.
func (e *Engine) autoSubmit(quizID, userID uint) {
	_, err := e.Submit(context.Background(), quizID, userID)
	if err != nil && !errors.Is(err, ErrNoActiveAttempt) && !errors.Is(err, ErrSubmitInProgress) {
		log.Printf("Auto-submit failed for quiz %d user %d: %v", quizID, userID, err)
	}
}

// RecordAnswer upserts the student's answer for one question. Answers are
// not graded here; grading is deferred to submission.
func (e *Engine) RecordAnswer(quizID, userID, questionID uint, value string) (View, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return View{}, ErrNoActiveAttempt
	}

	known := false
	for _, q := range s.questions {
		if q.ID == questionID {
			known = true
			break
		}
	}
	if !known {
		return View{}, ErrUnknownQuestion
	}

	s.answers[questionID] = value
	return s.view(), nil
}

func (e *Engine) NextQuestion(quizID, userID uint) (View, error) {
	return e.moveCursor(quizID, userID, +1)
}

func (e *Engine) PreviousQuestion(quizID, userID uint) (View, error) {
	return e.moveCursor(quizID, userID, -1)
}

func (e *Engine) moveCursor(quizID, userID uint, delta int) (View, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return View{}, ErrNoActiveAttempt
	}

	next := s.index + delta
	if next >= 0 && next < len(s.questions) {
		s.index = next
	}
	return s.view(), nil
}

// GoToQuestion jumps the cursor directly. The quiz's question_navigation
// flag only hides the navigation widget; the jump itself is always allowed.
// Out-of-range indexes are ignored.
func (e *Engine) GoToQuestion(quizID, userID uint, index int) (View, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return View{}, ErrNoActiveAttempt
	}
	if index >= 0 && index < len(s.questions) {
		s.index = index
	}
	return s.view(), nil
}

// Submit grades and persists the current attempt. It is guarded against
// re-entry so a double click, or the countdown racing a manual submit, can
// only persist once. A failed persist leaves the attempt (and its answers)
// in place for a manual retry.
func (e *Engine) Submit(ctx context.Context, quizID, userID uint) (*Result, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitting {
		return nil, ErrSubmitInProgress
	}
	if s.current == nil {
		return nil, ErrNoActiveAttempt
	}

	s.submitting = true

	answers := make(models.AnswerMap, len(s.answers))
	for id, value := range s.answers {
		answers[id] = value
	}
	score := scoreAttempt(s.questions, answers)
	submittedAt := time.Now()

	if err := e.store.SubmitAttempt(ctx, s.current.ID, answers, score, submittedAt); err != nil {
		// Roll back to active; the student keeps their answers and may
		// retry manually.
		s.submitting = false
		return nil, err
	}

	s.current.Answers = answers
	s.current.Score = score
	s.current.SubmittedAt = &submittedAt
	s.history = append([]models.QuizAttempt{*s.current}, s.history...)
	s.current = nil
	s.submitting = false

	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}

	result := &Result{
		Score:    score,
		MaxScore: s.maxScore(),
	}
	if s.Quiz.ShowResults {
		result.Questions = make([]models.QuestionDTO, len(s.questions))
		for i, q := range s.questions {
			result.Questions[i] = q.ToDTO(s.Quiz.ShowCorrectAnswers)
		}
		result.UserAnswers = answers
	}
	s.lastResult = result

	return result, nil
}

// Result returns the most recent submission's result view, while the quiz
// allows reviewing it.
func (e *Engine) Result(quizID, userID uint) (*Result, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastResult == nil || !s.Quiz.AllowReview {
		return nil, ErrNoResult
	}
	return s.lastResult, nil
}

// View returns the current session snapshot.
func (e *Engine) View(quizID, userID uint) (View, error) {
	s, err := e.session(quizID, userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// scoreAttempt applies exact string-equality grading: a question scores its
// points only when the recorded answer strictly equals the correct answer.
// Unanswered questions contribute zero. No normalization, no partial credit.
func scoreAttempt(questions []models.QuizQuestion, answers models.AnswerMap) int {
	score := 0
	for _, q := range questions {
		if answer, ok := answers[q.ID]; ok && answer == q.CorrectAnswer {
			score += q.Points
		}
	}
	return score
}
