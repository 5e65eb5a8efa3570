package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"lms-system/internal/models"
)

const (
	ActionNone         = "none"
	ActionCreateCourse = "create_course"
	ActionEditCourse   = "edit_course"
	ActionDeleteCourse = "delete_course"
	ActionCreateLesson = "create_lesson"
	ActionEditLesson   = "edit_lesson"
	ActionDeleteLesson = "delete_lesson"
)

const (
	defaultDailyLimit = 20
	fallbackReply     = "I'm not sure how to help with that. Could you rephrase?"
	errorReply        = "Sorry, I encountered an error. Please try again."
)

var (
	ErrQuotaExceeded   = errors.New("daily message limit reached")
	ErrNoPendingAction = errors.New("no action awaiting confirmation")
)

// ActionRequest is a resolved mutation waiting for the user's explicit
// confirmation. Edit and delete requests never get this far without a
// resolved course id in Data.
type ActionRequest struct {
	Action          string                 `json:"action"`
	Data            map[string]interface{} `json:"data"`
	Description     string                 `json:"description"`
	OriginalMessage string                 `json:"original_message"`
}

// Generator is the slice of the generation endpoint the pipeline consumes.
type Generator interface {
	Generate(ctx context.Context, systemInstruction, text string) (string, error)
	GenerateJSON(ctx context.Context, systemInstruction, text string) (string, error)
}

// CourseStore is the slice of the course table the pipeline consumes. Every
// operation is scoped by the acting teacher's id.
type CourseStore interface {
	ListByOwner(ctx context.Context, ownerID uint) ([]models.Course, error)
	SearchByTitle(ctx context.Context, ownerID uint, fragment string) ([]models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, ownerID, courseID uint, patch map[string]interface{}) error
	Delete(ctx context.Context, ownerID, courseID uint) error
}

// Store is the key-value persistence port for transcripts and daily quota
// counters. Injected, never ambient.
type Store interface {
	AppendChatMessage(ctx context.Context, userID uint, role string, msg models.ChatMessage) error
	LoadChatHistory(ctx context.Context, userID uint, role string) ([]models.ChatMessage, error)
	IncrementDailyCount(ctx context.Context, userID uint, role, date string) (int64, error)
	DailyCount(ctx context.Context, userID uint, role, date string) (int64, error)
}

// Broadcaster pushes assistant messages to any connected chat panel.
type Broadcaster interface {
	SendToUser(userID uint, event string, data interface{})
}

type Pipeline struct {
	generator  Generator
	courses    CourseStore
	store      Store
	hub        Broadcaster
	dailyLimit int64
	now        func() time.Time

	mu       sync.Mutex
	pending  map[uint]*ActionRequest
	counters map[string]int
}

func NewPipeline(generator Generator, courses CourseStore, store Store, hub Broadcaster, dailyLimit int64) *Pipeline {
	if dailyLimit <= 0 {
		dailyLimit = defaultDailyLimit
	}
	return &Pipeline{
		generator:  generator,
		courses:    courses,
		store:      store,
		hub:        hub,
		dailyLimit: dailyLimit,
		now:        time.Now,
		pending:    make(map[uint]*ActionRequest),
		counters:   make(map[string]int),
	}
}

// TurnResult is one completed chat turn: the assistant's reply and, when the
// turn produced a mutation proposal, the staged request awaiting
// confirmation.
type TurnResult struct {
	Reply   models.ChatMessage `json:"reply"`
	Pending *ActionRequest     `json:"pending,omitempty"`
}

// Send runs one chat turn. Students are quota-gated before any generation
// call is made; teachers with action mode on may get a staged mutation back
// instead of a plain reply. Transport failures surface as a single generic
// assistant message and never as an error to the caller.
func (p *Pipeline) Send(ctx context.Context, userID uint, role, text string, actionMode bool) (*TurnResult, error) {
	if role == models.RoleStudent {
		date := p.now().Format("2006-01-02")
		count, err := p.store.DailyCount(ctx, userID, role, date)
		if err != nil {
			return nil, err
		}
		if count >= p.dailyLimit {
			return nil, ErrQuotaExceeded
		}
		if _, err := p.store.IncrementDailyCount(ctx, userID, role, date); err != nil {
			return nil, err
		}
	}

	if err := p.append(ctx, userID, role, models.ChatRoleUser, text); err != nil {
		return nil, err
	}

	reply := p.dispatch(ctx, role, text, actionMode)

	if !reply.Structured {
		return p.plainReply(ctx, userID, role, reply.Message)
	}

	candidate := selectCandidate(reply.Candidates)
	if candidate == nil {
		message := fallbackReply
		if len(reply.Candidates) > 0 && reply.Candidates[0].Message != "" {
			message = reply.Candidates[0].Message
		}
		return p.plainReply(ctx, userID, role, message)
	}

	request, failure := p.buildRequest(ctx, userID, *candidate, text)
	if failure != "" {
		return p.plainReply(ctx, userID, role, failure)
	}

	p.mu.Lock()
	p.pending[userID] = request
	p.mu.Unlock()

	message := candidate.Message
	if message == "" {
		message = request.Description
	}

	result, err := p.plainReply(ctx, userID, role, message)
	if err != nil {
		return nil, err
	}
	result.Pending = request
	return result, nil
}

// dispatch calls the generation endpoint with a role-appropriate system
// instruction. Action mode is only honored for teachers.
func (p *Pipeline) dispatch(ctx context.Context, role, text string, actionMode bool) GenerationReply {
	if actionMode && role == models.RoleTeacher {
		raw, err := p.generator.GenerateJSON(ctx, teacherActionInstruction, text)
		if err != nil {
			log.Printf("Generation call failed: %v", err)
			return GenerationReply{Message: errorReply}
		}
		return parseCandidates(raw)
	}

	instruction := studentInstruction
	if role == models.RoleTeacher {
		instruction = teacherInstruction
	}

	raw, err := p.generator.Generate(ctx, instruction, text)
	if err != nil {
		log.Printf("Generation call failed: %v", err)
		return GenerationReply{Message: errorReply}
	}
	return GenerationReply{Message: extractMessage(raw)}
}

// selectCandidate drops "none" entries and takes the first actionable one.
func selectCandidate(candidates []Candidate) *Candidate {
	for i := range candidates {
		if candidates[i].Action != "" && candidates[i].Action != ActionNone {
			return &candidates[i]
		}
	}
	return nil
}

// buildRequest turns a candidate into a confirmable ActionRequest, running
// entity resolution for edit/delete. A non-empty failure string means the
// action was aborted before the confirmation stage.
func (p *Pipeline) buildRequest(ctx context.Context, userID uint, candidate Candidate, original string) (*ActionRequest, string) {
	data := map[string]interface{}{"action": candidate.Action}
	if candidate.Title != "" {
		data["title"] = candidate.Title
	}
	if candidate.Description != "" {
		data["description"] = candidate.Description
	}
	if candidate.Price != nil {
		data["price"] = *candidate.Price
	}
	if candidate.Status != "" {
		data["status"] = candidate.Status
	}
	if candidate.Message != "" {
		data["message"] = candidate.Message
	}

	description := describeAction(candidate)

	if candidate.Action == ActionEditCourse || candidate.Action == ActionDeleteCourse {
		course, failure := p.resolveCourse(ctx, userID, original)
		if failure != "" {
			return nil, failure
		}
		data["id"] = course.ID
		description = describeResolved(candidate.Action, course.Title)
	}

	return &ActionRequest{
		Action:          candidate.Action,
		Data:            data,
		Description:     description,
		OriginalMessage: original,
	}, ""
}

// resolveCourse runs the three resolution stages: local fuzzy search, remote
// name extraction, then a scoped title lookup with the extracted name. The
// first row of the lookup wins; multiple matches are not disambiguated.
func (p *Pipeline) resolveCourse(ctx context.Context, userID uint, original string) (*models.Course, string) {
	courses, err := p.courses.ListByOwner(ctx, userID)
	if err != nil {
		log.Printf("Error listing courses for user %d: %v", userID, err)
		return nil, errorReply
	}

	if course := ResolveCourse(courses, original); course != nil {
		return course, ""
	}

	name, err := p.generator.Generate(ctx, extractionInstruction, original)
	if err != nil {
		log.Printf("Name extraction failed: %v", err)
		return nil, errorReply
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "NONE") {
		return nil, "I couldn't figure out which course you mean. Please name the course exactly."
	}

	matches, err := p.courses.SearchByTitle(ctx, userID, name)
	if err != nil {
		log.Printf("Error searching courses for user %d: %v", userID, err)
		return nil, errorReply
	}
	if len(matches) == 0 {
		return nil, fmt.Sprintf("I couldn't find a course named %q among your courses.", name)
	}
	return &matches[0], ""
}

func describeAction(candidate Candidate) string {
	switch candidate.Action {
	case ActionCreateCourse:
		return fmt.Sprintf("Create course %q", candidate.Title)
	case ActionCreateLesson:
		return fmt.Sprintf("Create lesson %q", candidate.Title)
	case ActionEditLesson, ActionDeleteLesson:
		return fmt.Sprintf("%s %q", strings.ReplaceAll(candidate.Action, "_", " "), candidate.Title)
	default:
		return strings.ReplaceAll(candidate.Action, "_", " ")
	}
}

func describeResolved(action, title string) string {
	if action == ActionDeleteCourse {
		return fmt.Sprintf("Delete course %q", title)
	}
	return fmt.Sprintf("Edit course %q", title)
}

func (p *Pipeline) plainReply(ctx context.Context, userID uint, role, message string) (*TurnResult, error) {
	reply, err := p.appendMessage(ctx, userID, role, models.ChatRoleAssistant, message)
	if err != nil {
		return nil, err
	}
	return &TurnResult{Reply: reply}, nil
}

func (p *Pipeline) append(ctx context.Context, userID uint, role, chatRole, content string) error {
	_, err := p.appendMessage(ctx, userID, role, chatRole, content)
	return err
}

func (p *Pipeline) appendMessage(ctx context.Context, userID uint, role, chatRole, content string) (models.ChatMessage, error) {
	msg := models.ChatMessage{
		ID:        p.nextMessageID(ctx, userID, role),
		Role:      chatRole,
		Content:   content,
		Timestamp: p.now(),
	}
	if err := p.store.AppendChatMessage(ctx, userID, role, msg); err != nil {
		return models.ChatMessage{}, err
	}
	if p.hub != nil && chatRole == models.ChatRoleAssistant {
		p.hub.SendToUser(userID, "assistant_message", msg)
	}
	return msg, nil
}

// History returns the user's per-role transcript in append order.
func (p *Pipeline) History(ctx context.Context, userID uint, role string) ([]models.ChatMessage, error) {
	return p.store.LoadChatHistory(ctx, userID, role)
}

// Pending returns the action awaiting confirmation for this user, if any.
func (p *Pipeline) Pending(userID uint) *ActionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[userID]
}

// nextMessageID builds a time+counter+random id. The counter is reseeded
// from the max counter suffix already in the transcript, so ids keep moving
// forward across restarts.
func (p *Pipeline) nextMessageID(ctx context.Context, userID uint, role string) string {
	key := fmt.Sprintf("%d:%s", userID, role)

	p.mu.Lock()
	counter, seeded := p.counters[key]
	p.mu.Unlock()

	if !seeded {
		counter = p.reseedCounter(ctx, userID, role)
	}
	counter++

	p.mu.Lock()
	p.counters[key] = counter
	p.mu.Unlock()

	return fmt.Sprintf("%d-%d-%04d", p.now().UnixMilli(), counter, rand.Intn(10000))
}

func (p *Pipeline) reseedCounter(ctx context.Context, userID uint, role string) int {
	history, err := p.store.LoadChatHistory(ctx, userID, role)
	if err != nil {
		log.Printf("Error reseeding message counter for user %d: %v", userID, err)
		return 0
	}

	max := 0
	for _, msg := range history {
		parts := strings.Split(msg.ID, "-")
		if len(parts) < 2 {
			continue
		}
		if n, err := strconv.Atoi(parts[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}
