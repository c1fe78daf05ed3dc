package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"datalab-quiz-service/internal/app"
	"datalab-quiz-service/internal/domain"
	"go.uber.org/zap"
)

// RESTHandler exposes progress, achievements and attempt history as JSON.
type RESTHandler struct {
	service *app.QuizService
	log     *zap.Logger
}

func NewRESTHandler(service *app.QuizService, log *zap.Logger) *RESTHandler {
	return &RESTHandler{service: service, log: log}
}

// Register mounts the routes on mux behind RequireIdentity.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, RequireIdentity(fn))
	}
	route("GET /v1/progress", h.getProgress)
	route("PATCH /v1/progress", h.patchProgress)
	route("POST /v1/progress/levels/{level}/complete", h.completeLevel)
	route("DELETE /v1/progress/levels/{level}", h.resetLevel)
	route("POST /v1/progress/reset", h.resetAll)
	route("POST /v1/progress/time", h.addTime)
	route("POST /v1/analyses", h.recordAnalysis)
	route("GET /v1/achievements", h.listAchievements)
	route("GET /v1/levels/{level}/attempts", h.listAttempts)
}

type achievementsResponse struct {
	Achievements []domain.Achievement `json:"achievements"`
}

type progressResponse struct {
	Progress        domain.ProgressView  `json:"progress"`
	NewAchievements []domain.Achievement `json:"newAchievements,omitempty"`
}

func (h *RESTHandler) getProgress(w http.ResponseWriter, r *http.Request) {
	h.respondProgress(w, r, nil)
}

func (h *RESTHandler) patchProgress(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid JSON body"})
		return
	}
	if err := h.service.UpdateProgress(r.Context(), fields); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondProgress(w, r, nil)
}

func (h *RESTHandler) completeLevel(w http.ResponseWriter, r *http.Request) {
	level, ok := h.level(w, r)
	if !ok {
		return
	}
	unlocked, err := h.service.CompleteLevel(r.Context(), level)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondProgress(w, r, unlocked)
}

func (h *RESTHandler) resetLevel(w http.ResponseWriter, r *http.Request) {
	level, ok := h.level(w, r)
	if !ok {
		return
	}
	if err := h.service.ResetLevel(r.Context(), level); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondProgress(w, r, nil)
}

func (h *RESTHandler) resetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetAll(r.Context()); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondProgress(w, r, nil)
}

func (h *RESTHandler) addTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid JSON body"})
		return
	}
	if err := h.service.AddTimeSpent(r.Context(), body.Minutes); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.respondProgress(w, r, nil)
}

func (h *RESTHandler) recordAnalysis(w http.ResponseWriter, r *http.Request) {
	rec, unlocked, err := h.service.RecordAnalysis(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Progress: rec.View(), NewAchievements: unlocked})
}

func (h *RESTHandler) listAchievements(w http.ResponseWriter, r *http.Request) {
	held, err := h.service.Achievements(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if held == nil {
		held = []domain.Achievement{}
	}
	writeJSON(w, http.StatusOK, achievementsResponse{Achievements: held})
}

func (h *RESTHandler) listAttempts(w http.ResponseWriter, r *http.Request) {
	level, ok := h.level(w, r)
	if !ok {
		return
	}
	attempts, err := h.service.Attempts(r.Context(), level)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if attempts == nil {
		attempts = []domain.QuizAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *RESTHandler) respondProgress(w http.ResponseWriter, r *http.Request, unlocked []domain.Achievement) {
	rec, err := h.service.Progress(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{Progress: rec.View(), NewAchievements: unlocked})
}

func (h *RESTHandler) level(w http.ResponseWriter, r *http.Request) (int, bool) {
	level, err := strconv.Atoi(r.PathValue("level"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "level must be a number"})
		return 0, false
	}
	return level, true
}
