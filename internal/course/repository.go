package course

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"lms-system/internal/models"
)

var ErrCourseNotFound = errors.New("course not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID uint) ([]models.Course, error) {
	var courses []models.Course
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at asc").
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

// SearchByTitle matches courses owned by ownerID whose title contains the
// fragment, case-insensitively.
func (r *Repository) SearchByTitle(ctx context.Context, ownerID uint, fragment string) ([]models.Course, error) {
	var courses []models.Course
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND title ILIKE ?", ownerID, "%"+fragment+"%").
		Order("created_at asc").
		Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *Repository) GetByID(ctx context.Context, courseID uint) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).First(&course, courseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

func (r *Repository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

// Update patches a course by id, additionally scoped by owner id so a stale
// or wrong id can never touch another teacher's row.
func (r *Repository) Update(ctx context.Context, ownerID, courseID uint, patch map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.Course{}).
		Where("id = ? AND owner_id = ?", courseID, ownerID).
		Updates(patch)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCourseNotFound
	}
	return nil
}

// Delete removes a course by id, scoped by owner id.
func (r *Repository) Delete(ctx context.Context, ownerID, courseID uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", courseID, ownerID).
		Delete(&models.Course{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCourseNotFound
	}
	return nil
}

// IsEnrolled reports whether the user has an active enrollment in the course.
func (r *Repository) IsEnrolled(ctx context.Context, courseID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Enrollment{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) Enroll(ctx context.Context, courseID, userID uint) error {
	enrollment := &models.Enrollment{
		CourseID: courseID,
		UserID:   userID,
	}
	return r.db.WithContext(ctx).Create(enrollment).Error
}
