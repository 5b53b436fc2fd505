// Package httpapi exposes the session scoring service over HTTP with gin.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"mocacore/internal/scoring"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger *zap.Logger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds a gin engine with recovery, request logging, /healthz,
// optional /metrics and the /api routes.
func NewRouter(h *Handlers, opts RouterOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.Named("http")))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	RegisterRoutes(r.Group("/api"), h)
	return r
}

// RegisterRoutes mounts every API endpoint under rg.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	users := rg.Group("/users")
	users.POST("", h.CreateUser)
	users.GET("/:id", h.GetUser)
	users.GET("/email/:email", h.GetUserByEmail)
	users.DELETE("/:id", h.DeleteUser)

	sessions := rg.Group("/sessions")
	sessions.POST("", h.CreateSession)
	sessions.GET("/:id", h.GetSession)
	sessions.GET("/user/:userId", h.ListUserSessions)
	sessions.POST("/:id/complete", h.CompleteSession)
	sessions.DELETE("/:id", h.DeleteSession)
	sessions.POST("/:id/results", h.RecordResult)
	sessions.GET("/:id/artifacts", h.ListArtifacts)

	score := rg.Group("/score")
	score.POST("/trail-making", h.ScoreTrailMaking())
	score.POST("/cube-copy", h.ScoreCubeCopy())
	score.POST("/clock-drawing", h.ScoreClockDrawing())
	score.POST("/naming", h.ScoreNaming())
	score.POST("/attention/forward", h.ScoreAttentionForward())
	score.POST("/attention/backward", h.ScoreAttentionBackward())
	score.POST("/attention/vigilance", h.ScoreAttentionVigilance())
	score.POST("/language/sentence-repetition", h.ScoreSentenceRepetition())
	score.POST("/language/verbal-fluency", h.ScoreVerbalFluency())
	score.POST("/abstraction", h.ScoreAbstraction())
	score.POST("/delayed-recall", h.ScoreDelayedRecall())
	score.POST("/orientation", h.ScoreOrientation())

	verify := rg.Group("/verify")
	verify.POST("/datetime", h.VerifyDateTime)
	verify.POST("/location", h.VerifyLocation)

	results := rg.Group("/results")
	results.GET("/:sessionId", h.Report)
	results.GET("/user/:userId/history", h.UserHistory)

	admin := rg.Group("/admin")
	admin.GET("/dashboard/stats", h.DashboardStats)
	admin.GET("/sessions", h.ListSessions)
	admin.GET("/sessions/:id/detailed", h.SessionDetail)
	admin.PUT("/sessions/:id/review", h.UpdateReview)
	admin.POST("/sessions/:id/reconcile", h.Reconcile)
}

var validatorsOnce sync.Once

// registerValidators adds the moca_section tag to gin's validator.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("moca_section", func(fl validator.FieldLevel) bool {
			_, err := scoring.Lookup(fl.Field().String())
			return err == nil
		})
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Info("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
