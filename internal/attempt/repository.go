package attempt

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"lms-system/internal/models"
)

var ErrQuizNotFound = errors.New("quiz not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetQuiz(ctx context.Context, quizID uint) (*models.Quiz, error) {
	var quiz models.Quiz
	err := r.db.WithContext(ctx).First(&quiz, quizID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuizNotFound
		}
		log.Printf("Error getting quiz %d: %v", quizID, err)
		return nil, err
	}
	return &quiz, nil
}

func (r *Repository) GetQuizQuestions(ctx context.Context, quizID uint) ([]models.QuizQuestion, error) {
	var questions []models.QuizQuestion
	err := r.db.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("order_index asc").
		Find(&questions).Error
	if err != nil {
		log.Printf("Error getting questions for quiz %d: %v", quizID, err)
		return nil, err
	}
	return questions, nil
}

// GetSubmittedAttempts returns the student's finished attempts, newest first.
func (r *Repository) GetSubmittedAttempts(ctx context.Context, quizID, userID uint) ([]models.QuizAttempt, error) {
	var attempts []models.QuizAttempt
	err := r.db.WithContext(ctx).
		Where("quiz_id = ? AND user_id = ? AND submitted_at IS NOT NULL", quizID, userID).
		Order("submitted_at desc").
		Find(&attempts).Error
	if err != nil {
		log.Printf("Error getting attempts for quiz %d user %d: %v", quizID, userID, err)
		return nil, err
	}
	return attempts, nil
}

func (r *Repository) CreateAttempt(ctx context.Context, attempt *models.QuizAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		log.Printf("Error creating attempt for quiz %d user %d: %v", attempt.QuizID, attempt.UserID, err)
		return err
	}
	return nil
}

func (r *Repository) SubmitAttempt(ctx context.Context, attemptID uint, answers models.AnswerMap, score int, submittedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.QuizAttempt{}).
		Where("id = ?", attemptID).
		Updates(map[string]interface{}{
			"answers":      answers,
			"score":        score,
			"submitted_at": submittedAt,
		}).Error
	if err != nil {
		log.Printf("Error submitting attempt %d: %v", attemptID, err)
	}
	return err
}

func (r *Repository) IsEnrolled(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	return count > 0, err
}
