package v1

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/logger"
	"github.com/duynhne/codeyard/internal/sandbox"
	"github.com/duynhne/codeyard/middleware"
)

// CookieOptions controls the refresh cookie.
type CookieOptions struct {
	Name   string
	Path   string
	Secure bool
}

// Handler groups the HTTP handlers of the sandbox API v1.
type Handler struct {
	svc    *sandbox.Service
	cookie CookieOptions
}

// NewHandler creates a Handler backed by svc.
func NewHandler(svc *sandbox.Service, cookie CookieOptions) *Handler {
	if cookie.Name == "" {
		cookie.Name = "refresh_token"
	}
	if cookie.Path == "" {
		cookie.Path = "/api/auth/"
	}
	return &Handler{svc: svc, cookie: cookie}
}

// RegisterRoutes registers every v1 route on rg. authLimit guards the
// credential-issuing endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authLimit gin.HandlerFunc) {
	rg.Use(Authenticate(h.svc))
	auth := RequireViewer()

	rg.POST("/auth/login/", authLimit, h.Login)
	rg.POST("/auth/register/", authLimit, h.Register)
	rg.POST("/auth/refresh/", authLimit, h.Refresh)
	rg.POST("/auth/logout/", auth, h.Logout)
	rg.GET("/users/me/", auth, h.Me)

	rg.GET("/categories/", h.Categories)
	rg.GET("/difficulties/", h.Difficulties)
	rg.GET("/languages/", h.Languages)

	rg.GET("/tasks/", h.ListTasks)
	rg.POST("/tasks/", auth, h.CreateTask)
	rg.GET("/tasks/:id/", h.GetTask)
	rg.PATCH("/tasks/:id/", auth, h.UpdateTask)
	rg.DELETE("/tasks/:id/", auth, h.DeleteTask)

	rg.GET("/solutions/", h.ListSolutions)
	rg.POST("/solutions/", auth, h.CreateSolution)
	rg.GET("/solutions/:id/", h.GetSolution)
	rg.PATCH("/solutions/:id/", auth, h.UpdateSolution)
	rg.DELETE("/solutions/:id/", auth, h.DeleteSolution)
	rg.POST("/solutions/:id/publish/", auth, h.PublishSolution)

	rg.GET("/reviews/", h.ListReviews)
	rg.POST("/reviews/", auth, h.CreateReview)
}

func (h *Handler) startSpan(c *gin.Context, name string) (context.Context, trace.Span) {
	return middleware.StartSpan(c.Request.Context(), name, trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.Request.URL.Path),
	))
}

func (h *Handler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.svc.RefreshTTL().Seconds()), h.cookie.Path, "", h.cookie.Secure, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(h.cookie.Name, "", -1, h.cookie.Path, "", h.cookie.Secure, true)
}

// Login handles POST /auth/login/.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.auth.login")
	defer span.End()
	log := logger.FromContext(ctx)

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		badRequest(c, err)
		return
	}

	tokens, err := h.svc.Login(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("username", req.Username).Msg("Login failed")
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, tokens.Refresh)
	log.Info().Str("username", req.Username).Msg("Login successful")
	c.JSON(http.StatusOK, domain.TokenResponse{Access: tokens.Access})
}

// Register handles POST /auth/register/.
func (h *Handler) Register(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.auth.register")
	defer span.End()
	log := logger.FromContext(ctx)

	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		badRequest(c, err)
		return
	}

	tokens, err := h.svc.Register(ctx, req)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("username", req.Username).Msg("Registration failed")
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, tokens.Refresh)
	log.Info().Str("username", req.Username).Msg("Registration successful")
	c.JSON(http.StatusCreated, domain.TokenResponse{Access: tokens.Access})
}

// Refresh handles POST /auth/refresh/. The refresh token comes from the
// cookie and is rotated on success.
func (h *Handler) Refresh(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.auth.refresh")
	defer span.End()

	token, err := c.Cookie(h.cookie.Name)
	if err != nil || token == "" {
		abort(c, http.StatusUnauthorized, "NotAuthenticated", "Refresh token not found.")
		return
	}

	tokens, err := h.svc.Refresh(ctx, token)
	if err != nil {
		span.RecordError(err)
		h.clearRefreshCookie(c)
		respondError(c, err)
		return
	}

	h.setRefreshCookie(c, tokens.Refresh)
	c.JSON(http.StatusOK, domain.TokenResponse{Access: tokens.Access})
}

// Logout handles POST /auth/logout/.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.auth.logout")
	defer span.End()

	if token, err := c.Cookie(h.cookie.Name); err == nil {
		h.svc.Logout(ctx, token)
	}
	h.clearRefreshCookie(c)
	c.JSON(http.StatusOK, gin.H{"detail": "Logged out."})
}

// Me handles GET /users/me/.
func (h *Handler) Me(c *gin.Context) {
	user, err := h.svc.Me(viewerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Categories())
}

func (h *Handler) Difficulties(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Difficulties())
}

func (h *Handler) Languages(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Languages())
}

// queryInts parses the named integer query parameters. Absent parameters
// are zero. Returns false after aborting with a validation error.
func queryInts(c *gin.Context, names ...string) (map[string]int64, bool) {
	out := make(map[string]int64, len(names))
	fields := make(map[string][]string)
	for _, name := range names {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			fields[name] = append(fields[name], "Select a valid choice.")
			continue
		}
		out[name] = n
	}
	if len(fields) > 0 {
		abort(c, http.StatusBadRequest, "ValidationError", fields)
		return nil, false
	}
	return out, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		abort(c, http.StatusNotFound, "NotFound", "Not found.")
		return 0, false
	}
	return id, true
}

// ListTasks handles GET /tasks/.
func (h *Handler) ListTasks(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.tasks.list")
	defer span.End()

	ints, ok := queryInts(c, "category", "difficulty", "added_by", "solved_by")
	if !ok {
		return
	}
	tasks, err := h.svc.ListTasks(ctx, viewerFrom(c), sandbox.TaskQuery{
		Search:     c.Query("search"),
		Category:   ints["category"],
		Difficulty: ints["difficulty"],
		Status:     domain.TaskStatus(c.Query("status")),
		AddedBy:    ints["added_by"],
		SolvedBy:   ints["solved_by"],
		Ordering:   c.Query("ordering"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if page, ok := paginate(c, tasks); ok {
		c.JSON(http.StatusOK, page)
	}
}

// GetTask handles GET /tasks/:id/.
func (h *Handler) GetTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	task, err := h.svc.GetTask(c.Request.Context(), viewerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CreateTask handles POST /tasks/.
func (h *Handler) CreateTask(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.tasks.create")
	defer span.End()

	var in domain.TaskInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.svc.CreateTask(ctx, viewerFrom(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// UpdateTask handles PATCH /tasks/:id/.
func (h *Handler) UpdateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch domain.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.svc.UpdateTask(c.Request.Context(), viewerFrom(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/:id/.
func (h *Handler) DeleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteTask(c.Request.Context(), viewerFrom(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSolutions handles GET /solutions/.
func (h *Handler) ListSolutions(c *gin.Context) {
	ints, ok := queryInts(c, "task", "language", "user")
	if !ok {
		return
	}
	q := sandbox.SolutionQuery{Task: ints["task"], Language: ints["language"], User: ints["user"]}
	if raw := c.Query("is_public"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, "ValidationError", map[string][]string{
				"is_public": {fmt.Sprintf("%q is not a valid boolean.", raw)},
			})
			return
		}
		q.IsPublic = &b
	}

	solutions := h.svc.ListSolutions(c.Request.Context(), viewerFrom(c), q)
	if page, ok := paginate(c, solutions); ok {
		c.JSON(http.StatusOK, page)
	}
}

// GetSolution handles GET /solutions/:id/.
func (h *Handler) GetSolution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	sol, err := h.svc.GetSolution(c.Request.Context(), viewerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sol)
}

// CreateSolution handles POST /solutions/.
func (h *Handler) CreateSolution(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.solutions.create")
	defer span.End()

	var in domain.SolutionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	sol, err := h.svc.CreateSolution(ctx, viewerFrom(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sol)
}

// UpdateSolution handles PATCH /solutions/:id/.
func (h *Handler) UpdateSolution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var patch domain.SolutionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	sol, err := h.svc.UpdateSolution(c.Request.Context(), viewerFrom(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sol)
}

// DeleteSolution handles DELETE /solutions/:id/.
func (h *Handler) DeleteSolution(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.solutions.delete")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteSolution(ctx, viewerFrom(c), id); err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PublishSolution handles POST /solutions/:id/publish/.
func (h *Handler) PublishSolution(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.solutions.publish")
	defer span.End()

	id, ok := pathID(c)
	if !ok {
		return
	}
	var req domain.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sol, err := h.svc.PublishSolution(ctx, viewerFrom(c), id, req.IsPublic)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sol)
}

// ListReviews handles GET /reviews/?solution=.
func (h *Handler) ListReviews(c *gin.Context) {
	ints, ok := queryInts(c, "solution")
	if !ok {
		return
	}
	if ints["solution"] == 0 {
		abort(c, http.StatusBadRequest, "ValidationError", map[string][]string{
			"solution": {"This query parameter is required."},
		})
		return
	}
	reviews, err := h.svc.ListReviews(c.Request.Context(), viewerFrom(c), ints["solution"])
	if err != nil {
		respondError(c, err)
		return
	}
	if page, ok := paginate(c, reviews); ok {
		c.JSON(http.StatusOK, page)
	}
}

// CreateReview handles POST /reviews/. Re-reviewing a solution replaces the
// previous vote and answers 200 instead of 201.
func (h *Handler) CreateReview(c *gin.Context) {
	ctx, span := h.startSpan(c, "http.reviews.create")
	defer span.End()

	var in domain.ReviewInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	review, created, err := h.svc.Review(ctx, viewerFrom(c), in)
	if err != nil {
		span.RecordError(err)
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, review)
}
