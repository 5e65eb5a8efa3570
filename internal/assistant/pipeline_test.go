package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"lms-system/internal/models"
)

type fakeGenerator struct {
	textResponse string
	textErr      error
	textCalls    int

	jsonResponse string
	jsonErr      error
	jsonCalls    int

	lastTextInstruction string
}

func (f *fakeGenerator) Generate(_ context.Context, systemInstruction, _ string) (string, error) {
	f.textCalls++
	f.lastTextInstruction = systemInstruction
	return f.textResponse, f.textErr
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _, _ string) (string, error) {
	f.jsonCalls++
	return f.jsonResponse, f.jsonErr
}

type courseMutation struct {
	ownerID  uint
	courseID uint
	patch    map[string]interface{}
}

type fakeCourses struct {
	courses       []models.Course
	searchResults []models.Course
	searchCalls   int

	created []*models.Course
	updates []courseMutation
	deletes []courseMutation
}

func (f *fakeCourses) ListByOwner(_ context.Context, ownerID uint) ([]models.Course, error) {
	out := make([]models.Course, 0, len(f.courses))
	for _, c := range f.courses {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCourses) SearchByTitle(_ context.Context, _ uint, _ string) ([]models.Course, error) {
	f.searchCalls++
	return f.searchResults, nil
}

func (f *fakeCourses) Create(_ context.Context, course *models.Course) error {
	f.created = append(f.created, course)
	return nil
}

func (f *fakeCourses) Update(_ context.Context, ownerID, courseID uint, patch map[string]interface{}) error {
	f.updates = append(f.updates, courseMutation{ownerID: ownerID, courseID: courseID, patch: patch})
	return nil
}

func (f *fakeCourses) Delete(_ context.Context, ownerID, courseID uint) error {
	f.deletes = append(f.deletes, courseMutation{ownerID: ownerID, courseID: courseID})
	return nil
}

// memStore mimics the redis-backed store, persisting messages as JSON so
// reloads go through a real marshal/unmarshal round trip.
type memStore struct {
	history  map[string][][]byte
	counters map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		history:  make(map[string][][]byte),
		counters: make(map[string]int64),
	}
}

func (m *memStore) key(userID uint, role string) string {
	return fmt.Sprintf("%d:%s", userID, role)
}

func (m *memStore) AppendChatMessage(_ context.Context, userID uint, role string, msg models.ChatMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := m.key(userID, role)
	m.history[key] = append(m.history[key], data)
	return nil
}

func (m *memStore) LoadChatHistory(_ context.Context, userID uint, role string) ([]models.ChatMessage, error) {
	raw := m.history[m.key(userID, role)]
	out := make([]models.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var msg models.ChatMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (m *memStore) IncrementDailyCount(_ context.Context, userID uint, role, date string) (int64, error) {
	key := fmt.Sprintf("%d:%s:%s", userID, role, date)
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memStore) DailyCount(_ context.Context, userID uint, role, date string) (int64, error) {
	return m.counters[fmt.Sprintf("%d:%s:%s", userID, role, date)], nil
}

const teacherID = uint(7)

func newTestPipeline(generator *fakeGenerator, courses *fakeCourses, store Store) *Pipeline {
	if store == nil {
		store = newMemStore()
	}
	return NewPipeline(generator, courses, store, nil, 5)
}

func ownedCourses() *fakeCourses {
	return &fakeCourses{
		courses: []models.Course{
			{ID: 1, Title: "Intro to Biology", OwnerID: teacherID},
			{ID: 2, Title: "RNA Structures", OwnerID: teacherID},
		},
	}
}

func TestStudentQuotaBlocksSixthSend(t *testing.T) {
	generator := &fakeGenerator{textResponse: `{"message":"Happy to help!"}`}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := pipeline.Send(ctx, 3, models.RoleStudent, "help me study", false); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
	if generator.textCalls != 5 {
		t.Fatalf("generation calls = %d, want 5", generator.textCalls)
	}

	_, err := pipeline.Send(ctx, 3, models.RoleStudent, "one more", false)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	// Blocked before any remote call.
	if generator.textCalls != 5 {
		t.Fatalf("generation calls after block = %d, want 5", generator.textCalls)
	}
}

func TestStudentQuotaResetsNextDay(t *testing.T) {
	generator := &fakeGenerator{textResponse: `{"message":"ok"}`}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	today := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	pipeline.now = func() time.Time { return today }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := pipeline.Send(ctx, 3, models.RoleStudent, "hi", false); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
	if _, err := pipeline.Send(ctx, 3, models.RoleStudent, "hi", false); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	// The key is date-qualified; rolling the calendar clears the block.
	pipeline.now = func() time.Time { return today.AddDate(0, 0, 1) }
	if _, err := pipeline.Send(ctx, 3, models.RoleStudent, "hi", false); err != nil {
		t.Fatalf("send after date change: %v", err)
	}
}

func TestTeacherIsNotQuotaGated(t *testing.T) {
	generator := &fakeGenerator{textResponse: `{"message":"ok"}`}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		if _, err := pipeline.Send(ctx, teacherID, models.RoleTeacher, "hello", false); err != nil {
			t.Fatalf("send %d: %v", i+1, err)
		}
	}
}

func TestActionModeIgnoredForStudents(t *testing.T) {
	generator := &fakeGenerator{textResponse: `{"message":"ok"}`}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	if _, err := pipeline.Send(context.Background(), 3, models.RoleStudent, "delete my course", true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if generator.jsonCalls != 0 {
		t.Fatal("student turn used the structured action prompt")
	}
	if generator.lastTextInstruction != studentInstruction {
		t.Fatal("student turn did not use the student instruction")
	}
}

func TestLocalResolutionSkipsExtraction(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"delete_course","message":"I'll delete that course."}]`,
	}
	courses := ownedCourses()
	pipeline := newTestPipeline(generator, courses, nil)

	result, err := pipeline.Send(context.Background(), teacherID, models.RoleTeacher, "delete RNA course", true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if result.Pending == nil {
		t.Fatal("no pending action staged")
	}
	if id, ok := result.Pending.Data["id"].(uint); !ok || id != 2 {
		t.Fatalf("resolved id = %v, want 2", result.Pending.Data["id"])
	}
	if !strings.Contains(result.Pending.Description, "RNA Structures") {
		t.Fatalf("description %q does not name the course", result.Pending.Description)
	}
	// Local search succeeded, so the remote extraction stage never ran.
	if generator.textCalls != 0 {
		t.Fatalf("extraction calls = %d, want 0", generator.textCalls)
	}
	if courses.searchCalls != 0 {
		t.Fatalf("lookup calls = %d, want 0", courses.searchCalls)
	}
	// Confirmation gate: nothing mutated yet.
	if len(courses.deletes) != 0 {
		t.Fatal("mutation ran before confirmation")
	}
}

func TestExtractionFallbackInvokedOnce(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"delete_course","message":"Removing it."}]`,
		textResponse: "RNA Structures",
	}
	courses := ownedCourses()
	courses.searchResults = []models.Course{courses.courses[1]}
	pipeline := newTestPipeline(generator, courses, nil)

	result, err := pipeline.Send(context.Background(), teacherID, models.RoleTeacher, "remove the second one", true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if generator.textCalls != 1 {
		t.Fatalf("extraction calls = %d, want exactly 1", generator.textCalls)
	}
	if courses.searchCalls != 1 {
		t.Fatalf("lookup calls = %d, want 1", courses.searchCalls)
	}
	if result.Pending == nil {
		t.Fatal("no pending action staged")
	}
	if id, _ := result.Pending.Data["id"].(uint); id != 2 {
		t.Fatalf("resolved id = %v, want 2", result.Pending.Data["id"])
	}
}

func TestExtractionNoneAbortsBeforeConfirmation(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"edit_course","title":"Whatever","message":"Editing."}]`,
		textResponse: "NONE",
	}
	courses := ownedCourses()
	pipeline := newTestPipeline(generator, courses, nil)

	result, err := pipeline.Send(context.Background(), teacherID, models.RoleTeacher, "change it please", true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if result.Pending != nil {
		t.Fatal("unresolvable action reached the confirmation stage")
	}
	if courses.searchCalls != 0 {
		t.Fatal("lookup ran despite NONE from extraction")
	}
	if !strings.Contains(result.Reply.Content, "couldn't") {
		t.Fatalf("reply %q does not explain the failed resolution", result.Reply.Content)
	}
	if pipeline.Pending(teacherID) != nil {
		t.Fatal("pending action staged after resolution failure")
	}
}

func TestConfirmExecutesScopedDelete(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"delete_course","message":"Deleting."}]`,
	}
	courses := ownedCourses()
	pipeline := newTestPipeline(generator, courses, nil)

	ctx := context.Background()
	if _, err := pipeline.Send(ctx, teacherID, models.RoleTeacher, "delete RNA course", true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(courses.deletes) != 0 {
		t.Fatal("delete ran before Confirm")
	}

	msg, err := pipeline.Confirm(ctx, teacherID, models.RoleTeacher)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if len(courses.deletes) != 1 {
		t.Fatalf("delete calls = %d, want 1", len(courses.deletes))
	}
	if courses.deletes[0].ownerID != teacherID || courses.deletes[0].courseID != 2 {
		t.Fatalf("delete scoped wrong: %+v", courses.deletes[0])
	}
	if !strings.HasPrefix(msg.Content, "✅") {
		t.Fatalf("confirmation message = %q", msg.Content)
	}

	// Pending cleared; a second confirm has nothing to run.
	if _, err := pipeline.Confirm(ctx, teacherID, models.RoleTeacher); !errors.Is(err, ErrNoPendingAction) {
		t.Fatalf("expected ErrNoPendingAction, got %v", err)
	}
}

func TestDeclineLeavesCoursesUntouched(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"delete_course","message":"Deleting."}]`,
	}
	courses := ownedCourses()
	pipeline := newTestPipeline(generator, courses, nil)

	ctx := context.Background()
	if _, err := pipeline.Send(ctx, teacherID, models.RoleTeacher, "delete RNA course", true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	before, _ := pipeline.History(ctx, teacherID, models.RoleTeacher)

	if err := pipeline.Decline(teacherID); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if len(courses.deletes) != 0 || len(courses.updates) != 0 || len(courses.created) != 0 {
		t.Fatal("declined action mutated courses")
	}
	// Transcript keeps only the original proposal; declining adds nothing.
	after, _ := pipeline.History(ctx, teacherID, models.RoleTeacher)
	if len(after) != len(before) {
		t.Fatalf("transcript grew from %d to %d on decline", len(before), len(after))
	}
	if pipeline.Pending(teacherID) != nil {
		t.Fatal("pending action survived decline")
	}
}

func TestConfirmCreateAppliesDefaults(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"create_course","title":"Genetics 101","message":"Creating Genetics 101."}]`,
	}
	courses := &fakeCourses{}
	pipeline := newTestPipeline(generator, courses, nil)

	ctx := context.Background()
	if _, err := pipeline.Send(ctx, teacherID, models.RoleTeacher, "make a genetics course", true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := pipeline.Confirm(ctx, teacherID, models.RoleTeacher); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(courses.created) != 1 {
		t.Fatalf("create calls = %d, want 1", len(courses.created))
	}
	created := courses.created[0]
	if created.Title != "Genetics 101" {
		t.Fatalf("title = %q", created.Title)
	}
	if created.OwnerID != teacherID {
		t.Fatalf("owner = %d, want %d", created.OwnerID, teacherID)
	}
	if created.Price != 0 {
		t.Fatalf("price = %v, want default 0", created.Price)
	}
	if created.Status != models.CourseStatusDraft {
		t.Fatalf("status = %q, want draft", created.Status)
	}
}

func TestConfirmEditStripsBookkeepingKeys(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"edit_course","title":"RNA Structures II","price":25,"message":"Renaming."}]`,
	}
	courses := ownedCourses()
	pipeline := newTestPipeline(generator, courses, nil)

	ctx := context.Background()
	if _, err := pipeline.Send(ctx, teacherID, models.RoleTeacher, "edit RNA Structures", true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := pipeline.Confirm(ctx, teacherID, models.RoleTeacher); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if len(courses.updates) != 1 {
		t.Fatalf("update calls = %d, want 1", len(courses.updates))
	}
	update := courses.updates[0]
	if update.ownerID != teacherID || update.courseID != 2 {
		t.Fatalf("update scoped wrong: %+v", update)
	}
	for _, key := range []string{"id", "action", "message"} {
		if _, present := update.patch[key]; present {
			t.Fatalf("bookkeeping key %q leaked into patch", key)
		}
	}
	if update.patch["title"] != "RNA Structures II" {
		t.Fatalf("patch title = %v", update.patch["title"])
	}
	if update.patch["price"] != 25.0 {
		t.Fatalf("patch price = %v", update.patch["price"])
	}
}

func TestLessonActionsReportNotImplemented(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"create_lesson","title":"Lesson 1","message":"Creating a lesson."}]`,
	}
	courses := &fakeCourses{}
	pipeline := newTestPipeline(generator, courses, nil)

	ctx := context.Background()
	if _, err := pipeline.Send(ctx, teacherID, models.RoleTeacher, "add lesson 1", true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, err := pipeline.Confirm(ctx, teacherID, models.RoleTeacher)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !strings.Contains(msg.Content, "not supported yet") {
		t.Fatalf("message = %q, want a not-implemented notice", msg.Content)
	}
	if len(courses.created) != 0 {
		t.Fatal("lesson action mutated courses")
	}
}

func TestMalformedStructuredOutputDegrades(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: "Sure, I can help with your courses!",
	}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	result, err := pipeline.Send(context.Background(), teacherID, models.RoleTeacher, "hello", true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Pending != nil {
		t.Fatal("malformed output staged an action")
	}
	if result.Reply.Content != "Sure, I can help with your courses!" {
		t.Fatalf("reply = %q", result.Reply.Content)
	}
}

func TestTransportFailureYieldsGenericReply(t *testing.T) {
	generator := &fakeGenerator{jsonErr: errors.New("connection refused")}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	result, err := pipeline.Send(context.Background(), teacherID, models.RoleTeacher, "hello", true)
	if err != nil {
		t.Fatalf("Send returned error instead of degrading: %v", err)
	}
	if result.Pending != nil {
		t.Fatal("failed turn staged an action")
	}
	if result.Reply.Content != errorReply {
		t.Fatalf("reply = %q, want generic error message", result.Reply.Content)
	}
}

func TestAllNoneCandidatesFallBackToMessage(t *testing.T) {
	generator := &fakeGenerator{
		jsonResponse: `[{"action":"none","message":"Just chatting, nothing to do."}]`,
	}
	pipeline := newTestPipeline(generator, &fakeCourses{}, nil)

	result, err := pipeline.Send(context.Background(), teacherID, models.RoleTeacher, "how are you", true)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Pending != nil {
		t.Fatal("none candidate staged an action")
	}
	if result.Reply.Content != "Just chatting, nothing to do." {
		t.Fatalf("reply = %q", result.Reply.Content)
	}
}

func TestTranscriptRoundTripAndCounterReseed(t *testing.T) {
	store := newMemStore()
	generator := &fakeGenerator{textResponse: `{"message":"reply"}`}
	pipeline := newTestPipeline(generator, &fakeCourses{}, store)

	ctx := context.Background()
	for _, text := range []string{"first", "second"} {
		if _, err := pipeline.Send(ctx, 3, models.RoleStudent, text, false); err != nil {
			t.Fatalf("Send %q: %v", text, err)
		}
	}

	history, err := pipeline.History(ctx, 3, models.RoleStudent)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []struct{ role, content string }{
		{models.ChatRoleUser, "first"},
		{models.ChatRoleAssistant, "reply"},
		{models.ChatRoleUser, "second"},
		{models.ChatRoleAssistant, "reply"},
	}
	if len(history) != len(want) {
		t.Fatalf("history length = %d, want %d", len(history), len(want))
	}
	maxCounter := 0
	for i, msg := range history {
		if msg.Role != want[i].role || msg.Content != want[i].content {
			t.Fatalf("message %d = {%s %q}, want {%s %q}", i, msg.Role, msg.Content, want[i].role, want[i].content)
		}
		if msg.Timestamp.IsZero() {
			t.Fatalf("message %d lost its timestamp in the round trip", i)
		}
		parts := strings.Split(msg.ID, "-")
		if len(parts) != 3 {
			t.Fatalf("message id %q is not time-counter-random", msg.ID)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			t.Fatalf("message id %q counter: %v", msg.ID, err)
		}
		if n > maxCounter {
			maxCounter = n
		}
	}

	// A fresh pipeline over the same store reseeds its counter from the max
	// suffix seen, so new ids keep counting up.
	reloaded := newTestPipeline(generator, &fakeCourses{}, store)
	result, err := reloaded.Send(ctx, 3, models.RoleStudent, "third", false)
	if err != nil {
		t.Fatalf("Send on reloaded pipeline: %v", err)
	}
	parts := strings.Split(result.Reply.ID, "-")
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		t.Fatalf("reloaded id %q: %v", result.Reply.ID, err)
	}
	if n <= maxCounter {
		t.Fatalf("reseeded counter %d not past previous max %d", n, maxCounter)
	}
}
