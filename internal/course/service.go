package course

import (
	"context"
	"errors"

	"lms-system/internal/models"
)

var ErrCourseNotPublished = errors.New("course is not published")

// Store is the slice of course storage the service consumes. *Repository
// satisfies it.
type Store interface {
	ListByOwner(ctx context.Context, ownerID uint) ([]models.Course, error)
	GetByID(ctx context.Context, courseID uint) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, ownerID, courseID uint, patch map[string]interface{}) error
	Delete(ctx context.Context, ownerID, courseID uint) error
	IsEnrolled(ctx context.Context, courseID, userID uint) (bool, error)
	Enroll(ctx context.Context, courseID, userID uint) error
}

type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListOwn(ctx context.Context, ownerID uint) ([]models.Course, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *Service) Create(ctx context.Context, course *models.Course) error {
	if course.Title == "" {
		return errors.New("course title is required")
	}
	if course.Status == "" {
		course.Status = models.CourseStatusDraft
	}
	return s.repo.Create(ctx, course)
}

func (s *Service) Update(ctx context.Context, ownerID, courseID uint, patch map[string]interface{}) error {
	return s.repo.Update(ctx, ownerID, courseID, patch)
}

func (s *Service) Delete(ctx context.Context, ownerID, courseID uint) error {
	return s.repo.Delete(ctx, ownerID, courseID)
}

// Enroll is idempotent. Only published courses accept enrollments; drafts
// stay invisible to students.
func (s *Service) Enroll(ctx context.Context, courseID, userID uint) error {
	course, err := s.repo.GetByID(ctx, courseID)
	if err != nil {
		return err
	}
	if course.Status != models.CourseStatusPublished {
		return ErrCourseNotPublished
	}

	enrolled, err := s.repo.IsEnrolled(ctx, courseID, userID)
	if err != nil {
		return err
	}
	if enrolled {
		return nil
	}
	return s.repo.Enroll(ctx, courseID, userID)
}
