package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lms-system/internal/models"
)

var errUnresolvedID = errors.New("action request carries no resolved id")

// Confirm executes the user's pending action. The pending request is
// cleared whether or not the mutation succeeds; the returned message is the
// ✅/❌ transcript entry, and err is non-nil when the mutation failed so the
// caller can surface a notification alongside it.
func (p *Pipeline) Confirm(ctx context.Context, userID uint, role string) (models.ChatMessage, error) {
	p.mu.Lock()
	request, ok := p.pending[userID]
	delete(p.pending, userID)
	p.mu.Unlock()

	if !ok {
		return models.ChatMessage{}, ErrNoPendingAction
	}

	execErr := p.executeAction(ctx, userID, request)

	var content string
	if execErr == nil {
		content = fmt.Sprintf("✅ Done: %s", request.Description)
	} else if errors.Is(execErr, errNotImplemented) {
		content = fmt.Sprintf("%s is not supported yet. Nothing was changed.", request.Description)
		execErr = nil
	} else {
		content = fmt.Sprintf("❌ Failed: %s (%v)", request.Description, execErr)
	}

	msg, appendErr := p.appendMessage(ctx, userID, role, models.ChatRoleAssistant, content)
	if appendErr != nil {
		log.Printf("Error appending confirmation message for user %d: %v", userID, appendErr)
	}
	return msg, execErr
}

// Decline drops the pending action. The transcript keeps the assistant's
// proposal but nothing is mutated.
func (p *Pipeline) Decline(userID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[userID]; !ok {
		return ErrNoPendingAction
	}
	delete(p.pending, userID)
	return nil
}

var errNotImplemented = errors.New("action not implemented")

func (p *Pipeline) executeAction(ctx context.Context, userID uint, request *ActionRequest) error {
	switch request.Action {
	case ActionCreateCourse:
		course := &models.Course{
			Title:   stringField(request.Data, "title"),
			OwnerID: userID,
			Status:  models.CourseStatusDraft,
		}
		if description := stringField(request.Data, "description"); description != "" {
			course.Description = description
		}
		if price, ok := request.Data["price"].(float64); ok {
			course.Price = price
		}
		if status := stringField(request.Data, "status"); status != "" {
			course.Status = status
		}
		return p.courses.Create(ctx, course)

	case ActionDeleteCourse:
		id, ok := idField(request.Data)
		if !ok {
			return errUnresolvedID
		}
		return p.courses.Delete(ctx, userID, id)

	case ActionEditCourse:
		id, ok := idField(request.Data)
		if !ok {
			return errUnresolvedID
		}
		patch := make(map[string]interface{}, len(request.Data))
		for key, value := range request.Data {
			patch[key] = value
		}
		// These are pipeline bookkeeping, not course columns.
		delete(patch, "id")
		delete(patch, "action")
		delete(patch, "message")
		return p.courses.Update(ctx, userID, id, patch)

	default:
		// Lesson actions and anything unrecognized: tell the user rather
		// than silently doing nothing.
		return errNotImplemented
	}
}

func stringField(data map[string]interface{}, key string) string {
	value, _ := data[key].(string)
	return value
}

func idField(data map[string]interface{}) (uint, bool) {
	switch value := data["id"].(type) {
	case uint:
		return value, true
	case float64:
		return uint(value), true
	default:
		return 0, false
	}
}
