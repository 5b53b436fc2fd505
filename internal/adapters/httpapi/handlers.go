package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mocacore/internal/core"
	"mocacore/internal/scoring/sections"
)

// IdempotencyHeader carries the client's retry key for scoring and result
// submissions. It wins over a key in the body.
const IdempotencyHeader = "Idempotency-Key"

// Handlers serves the session scoring API on top of core.Service.
type Handlers struct {
	svc *core.Service
}

// NewHandlers wraps svc.
func NewHandlers(svc *core.Service) *Handlers {
	return &Handlers{svc: svc}
}

func idempotencyKey(c *gin.Context, body string) string {
	if key := strings.TrimSpace(c.GetHeader(IdempotencyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(body)
}

func (t scoreTarget) request(c *gin.Context) core.ScoreRequest {
	return core.ScoreRequest{
		SessionID:      t.SessionID,
		UserID:         t.UserID,
		IdempotencyKey: idempotencyKey(c, t.IdempotencyKey),
	}
}

// Users

func (h *Handlers) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reg, err := h.svc.CreateUser(c.Request.Context(), core.NewUser{
		Email:          req.Email,
		Name:           req.Name,
		EducationYears: req.EducationYears,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handlers) GetUserByEmail(c *gin.Context) {
	user, err := h.svc.GetUserByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handlers) DeleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sessions

func (h *Handlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.svc.CreateSession(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handlers) ListUserSessions(c *gin.Context) {
	list, err := h.svc.ListUserSessions(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *Handlers) CompleteSession(c *gin.Context) {
	sess, err := h.svc.CompleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RecordResult is the generic recorder entry point for pre-scored sections.
func (h *Handlers) RecordResult(c *gin.Context) {
	var req recordResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := core.RecordInput{
		SessionID:            c.Param("id"),
		UserID:               req.UserID,
		SectionName:          req.SectionName,
		RawScore:             *req.RawScore,
		MaxScore:             req.MaxScore,
		Confidence:           1,
		RequiresManualReview: req.RequiresManualReview,
		Details:              req.Details,
		IdempotencyKey:       idempotencyKey(c, req.IdempotencyKey),
	}
	if req.Confidence != nil {
		in.Confidence = *req.Confidence
	}
	out, err := h.svc.RecordSectionResult(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if out.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, out)
}

func (h *Handlers) ListArtifacts(c *gin.Context) {
	infos, err := h.svc.ListArtifacts(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": infos})
}

// Scoring

// scoreHandler binds a request of type R and runs score with it.
func scoreHandler[R any](score func(*gin.Context, *R) (core.ScoreOutcome, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req R
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		out, err := score(c, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func (h *Handlers) ScoreTrailMaking() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *trailMakingRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreTrailMaking(c.Request.Context(), r.request(c), r.Path, r.CrossingErrors)
	})
}

func (h *Handlers) ScoreCubeCopy() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *cubeCopyRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreCubeCopy(c.Request.Context(), r.request(c), r.Image, r.DetectedShapes)
	})
}

func (h *Handlers) ScoreClockDrawing() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *clockDrawingRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreClockDrawing(c.Request.Context(), r.request(c), r.Image, r.TargetTime)
	})
}

func (h *Handlers) ScoreNaming() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *namingRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreNaming(c.Request.Context(), r.request(c), r.Responses)
	})
}

func (h *Handlers) ScoreAttentionForward() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *digitSpanRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreAttentionForward(c.Request.Context(), r.request(c), r.Response, r.Sequence)
	})
}

func (h *Handlers) ScoreAttentionBackward() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *digitSpanRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreAttentionBackward(c.Request.Context(), r.request(c), r.Response, r.Sequence)
	})
}

func (h *Handlers) ScoreAttentionVigilance() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *vigilanceRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreAttentionVigilance(c.Request.Context(), r.request(c), r.Taps, r.Targets)
	})
}

func (h *Handlers) ScoreSentenceRepetition() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *sentenceRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreSentenceRepetition(c.Request.Context(), r.request(c), r.Attempts)
	})
}

func (h *Handlers) ScoreVerbalFluency() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *fluencyRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreVerbalFluency(c.Request.Context(), r.request(c), r.Transcript)
	})
}

func (h *Handlers) ScoreAbstraction() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *abstractionRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreAbstraction(c.Request.Context(), r.request(c), r.Answers)
	})
}

func (h *Handlers) ScoreDelayedRecall() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *delayedRecallRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreDelayedRecall(c.Request.Context(), r.request(c), r.Original, r.Recalled)
	})
}

func (h *Handlers) ScoreOrientation() gin.HandlerFunc {
	return scoreHandler(func(c *gin.Context, r *orientationRequest) (core.ScoreOutcome, error) {
		return h.svc.ScoreOrientation(c.Request.Context(), r.request(c), r.OrientationAnswer)
	})
}

// VerifyDateTime checks orientation answers without recording them.
func (h *Handlers) VerifyDateTime(c *gin.Context) {
	var ans sections.OrientationAnswer
	if err := c.ShouldBindJSON(&ans); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.VerifyDateTime(ans))
}

// VerifyLocation checks a city answer without recording it.
func (h *Handlers) VerifyLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.VerifyLocation(req.City))
}

// Results

func (h *Handlers) Report(c *gin.Context) {
	report, err := h.svc.Report(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handlers) UserHistory(c *gin.Context) {
	history, err := h.svc.UserHistory(c.Request.Context(), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("userId"), "sessions": history})
}

// Admin

func (h *Handlers) DashboardStats(c *gin.Context) {
	stats, err := h.svc.DashboardStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) ListSessions(c *gin.Context) {
	var q listSessionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	list, err := h.svc.ListSessions(c.Request.Context(), core.SessionFilter{
		RequiresReview: q.RequiresReview,
		Limit:          q.Limit,
		Skip:           q.Skip,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": list})
}

func (h *Handlers) SessionDetail(c *gin.Context) {
	detail, err := h.svc.SessionDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handlers) UpdateReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.svc.UpdateReview(c.Request.Context(), c.Param("id"), core.ReviewUpdate{
		RequiresReview: *req.RequiresReview,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handlers) Reconcile(c *gin.Context) {
	report, err := h.svc.ReconcileSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
