package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/careerforge/careerforge/internal/api/handlers"
	"github.com/careerforge/careerforge/internal/api/middleware"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Limits configures the two fixed-window limiters. A zero Max disables one.
type Limits struct {
	AIMax     int64
	AIWindow  time.Duration
	APIMax    int64
	APIWindow time.Duration
}

type Deps struct {
	Interview *handlers.InterviewHandler
	Resume    *handlers.ResumeHandler
	WS        *handlers.WSHandler

	JWT            middleware.JWTOptions
	Counter        middleware.Counter
	Limits         Limits
	Idempotency    middleware.IdempotencyStore
	IdempotencyTTL time.Duration

	// Ready reports per-backend health for /readyz; nil skips the probe.
	Ready func(ctx context.Context) map[string]error

	Logger logrus.FieldLogger
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.Ready != nil {
		r.GET("/readyz", readiness(d.Ready))
	}

	ai := middleware.RateLimit("ai", d.Counter, d.Limits.AIMax, d.Limits.AIWindow, d.Logger)
	idem := middleware.Idempotency(d.Idempotency, d.IdempotencyTTL, d.Logger)

	api := r.Group("/api")
	api.Use(
		middleware.JWTAuth(d.JWT),
		middleware.RateLimit("api", d.Counter, d.Limits.APIMax, d.Limits.APIWindow, d.Logger),
	)

	iv := api.Group("/interview")
	iv.POST("", idem, ai, d.Interview.Create)
	iv.GET("", d.Interview.List)
	iv.POST("/schedule", middleware.RequireStaff(), idem, d.Interview.Schedule)
	iv.POST("/transcribe", ai, d.Interview.Transcribe)
	iv.POST("/analyze-confidence", ai, d.Interview.AnalyzeConfidence)
	iv.GET("/:id", d.Interview.Get)
	iv.POST("/:id/start", idem, ai, d.Interview.Start)
	iv.POST("/:id/answer", idem, ai, d.Interview.SubmitAnswer)
	iv.GET("/:id/next-question", d.Interview.NextQuestion)
	iv.POST("/:id/complete", idem, ai, d.Interview.Complete)
	iv.POST("/:id/cancel", idem, d.Interview.Cancel)
	iv.GET("/:id/evaluation", d.Interview.Evaluation)
	iv.GET("/:id/metrics", d.Interview.Metrics)
	iv.GET("/:id/feedback", d.Interview.Feedback)

	if d.Resume != nil {
		rs := api.Group("/resume")
		rs.POST("/upload", idem, d.Resume.Upload)
		rs.GET("", d.Resume.List)
		rs.GET("/:id", d.Resume.Get)
		rs.POST("/:id/analyze", ai, d.Resume.Analyze)
		rs.GET("/:id/download", d.Resume.Download)
		rs.DELETE("/:id", d.Resume.Delete)
	}

	// socket clients pass the token as ?token=
	r.GET("/ws", middleware.JWTAuth(d.JWT), d.WS.Connect)
}

func readiness(probe func(ctx context.Context) map[string]error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}
		for name, err := range probe(ctx) {
			if err != nil {
				status = http.StatusServiceUnavailable
				checks[name] = err.Error()
				continue
			}
			checks[name] = "ok"
		}
		c.JSON(status, gin.H{"ready": status == http.StatusOK, "checks": checks})
	}
}
