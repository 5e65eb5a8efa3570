package attempt

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lms-system/internal/auth"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) LoadSession(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.ids(w, r)
	if !ok {
		return
	}

	view, err := h.engine.LoadSession(r.Context(), quizID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(view)
}

func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.ids(w, r)
	if !ok {
		return
	}

	view, err := h.engine.StartAttempt(r.Context(), quizID, userID)
	if err != nil {
		log.Printf("Error starting attempt for quiz %d user %d: %v", quizID, userID, err)
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(view)
}

type answerRequest struct {
	QuestionID uint   `json:"question_id"`
	Answer     string `json:"answer"`
}

func (h *Handler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.ids(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.engine.RecordAnswer(quizID, userID, req.QuestionID, req.Answer)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(view)
}

type navigateRequest struct {
	Direction string `json:"direction"` // "next", "previous" or "goto"
	Index     int    `json:"index"`
}

func (h *Handler) Navigate(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.ids(w, r)
	if !ok {
		return
	}

	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var view View
	var err error
	switch req.Direction {
	case "next":
		view, err = h.engine.NextQuestion(quizID, userID)
	case "previous":
		view, err = h.engine.PreviousQuestion(quizID, userID)
	case "goto":
		view, err = h.engine.GoToQuestion(quizID, userID, req.Index)
	default:
		http.Error(w, "Invalid direction", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.ids(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Submit(r.Context(), quizID, userID)
	if err != nil {
		log.Printf("Error submitting attempt for quiz %d user %d: %v", quizID, userID, err)
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(result)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	userID, quizID, ok := h.ids(w, r)
	if !ok {
		return
	}

	result, err := h.engine.Result(quizID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	json.NewEncoder(w).Encode(result)
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (userID, quizID uint, ok bool) {
	userID, authed := auth.UserID(r.Context())
	if !authed {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, 0, false
	}

	raw, err := strconv.ParseUint(mux.Vars(r)["quizID"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid quiz id", http.StatusBadRequest)
		return 0, 0, false
	}
	return userID, uint(raw), true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrQuizNotFound), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoResult):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNotEnrolled):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrAttemptsExhausted), errors.Is(err, ErrAttemptInProgress),
		errors.Is(err, ErrNoActiveAttempt), errors.Is(err, ErrSubmitInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrUnknownQuestion):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
