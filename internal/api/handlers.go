package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"admindash/internal/bridge"
	"admindash/internal/models"
	"admindash/internal/ratelimit"
	"admindash/internal/service/ai"
	"admindash/internal/service/notify"
	"admindash/internal/service/users"
)

type UserService interface {
	Create(ctx context.Context, in users.CreateInput) (*models.User, error)
	Update(ctx context.Context, id uint, patch users.Patch) (*models.User, error)
	SoftDelete(ctx context.Context, id uint) (*models.User, error)
	List(ctx context.Context, opts users.ListOptions) ([]models.User, error)
	Analytics(ctx context.Context, start, end time.Time) (users.Counts, error)
}

type Completer interface {
	Complete(ctx context.Context, req ai.Request) (*schema.Message, error)
}

type ActionBridge interface {
	Process(ctx context.Context, text string, snapshot json.RawMessage) bridge.Outcome
}

// Deps collects what the handler needs. Assistant, Mailer and Notifier may
// be nil when the matching integration is not configured.
type Deps struct {
	Users        UserService
	Assistant    Completer
	Bridge       ActionBridge
	Mailer       bridge.Mailer
	Notifier     bridge.ChangeNotifier
	Location     *time.Location
	AILimiter    ratelimit.Limiter
	EmailLimiter ratelimit.Limiter
	Logger       *zap.Logger
}

// Handler wires HTTP routes to the user store, the assistant bridge and the mailer.
type Handler struct {
	users        UserService
	assistant    Completer
	bridge       ActionBridge
	mailer       bridge.Mailer
	notifier     bridge.ChangeNotifier
	loc          *time.Location
	aiLimiter    ratelimit.Limiter
	emailLimiter ratelimit.Limiter
	logger       *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(deps Deps) *Handler {
	h := &Handler{
		users:        deps.Users,
		assistant:    deps.Assistant,
		bridge:       deps.Bridge,
		mailer:       deps.Mailer,
		notifier:     deps.Notifier,
		loc:          deps.Location,
		aiLimiter:    deps.AILimiter,
		emailLimiter: deps.EmailLimiter,
		logger:       deps.Logger,
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.GET("/users", h.listUsers)
	api.POST("/users", h.createUser)
	api.PUT("/users", h.updateUser)
	api.DELETE("/users", h.deleteUser)
	api.POST("/analytics", h.analytics)
	api.POST("/ai", RateLimit(h.aiLimiter), h.chat)
	api.POST("/email", RateLimit(h.emailLimiter), h.sendEmail)
}

func (h *Handler) listUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context(), users.ListOptions{
		Sort:  c.Query("sort"),
		Order: c.Query("order"),
	})
	if err != nil {
		if errors.Is(err, users.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		h.logger.Error("list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to fetch users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": list})
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	user, err := h.users.Create(c.Request.Context(), users.CreateInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	h.notifyChange(c.Request.Context(), user, notify.ChangeCreated)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User created successfully",
		"user":    user,
	})
}

type updateUserRequest struct {
	ID    json.Number `json:"id"`
	Name  *string     `json:"name"`
	Email *string     `json:"email"`
	Phone *string     `json:"phone"`
}

type deleteUserRequest struct {
	ID json.Number `json:"id"`
}

func (h *Handler) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	id, ok := parseUserID(req.ID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "User ID is required"})
		return
	}
	user, err := h.users.Update(c.Request.Context(), id, users.Patch{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	h.notifyChange(c.Request.Context(), user, notify.ChangeUpdated)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "User updated successfully",
		"user":    user,
	})
}

func (h *Handler) deleteUser(c *gin.Context) {
	var req deleteUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	id, ok := parseUserID(req.ID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "User ID is required"})
		return
	}
	user, err := h.users.SoftDelete(c.Request.Context(), id)
	if err != nil {
		h.writeUserError(c, err)
		return
	}
	h.notifyChange(c.Request.Context(), user, notify.ChangeDeleted)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User deleted successfully"})
}

func (h *Handler) writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, users.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, users.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "User not found"})
	case errors.Is(err, users.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	default:
		h.logger.Error("user write failed",
			zap.String("request_id", RequestIDFromContext(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}

func (h *Handler) notifyChange(ctx context.Context, user *models.User, kind notify.ChangeKind) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyUserChange(ctx, user, kind); err != nil {
		h.logger.Warn("user change notification failed",
			zap.Uint("user_id", user.ID),
			zap.String("change", string(kind)),
			zap.Error(err))
	}
}

func parseUserID(raw json.Number) (uint, bool) {
	value := strings.TrimSpace(raw.String())
	if value == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

type analyticsRequest struct {
	Date struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"date"`
}

func (h *Handler) analytics(c *gin.Context) {
	var req analyticsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Date.From == "" || req.Date.To == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date.from and date.to are required"})
		return
	}
	from, err := users.ParseDay(req.Date.From, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, err := users.ParseDay(req.Date.To, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end := users.DayRange(from, to, h.loc)
	counts, err := h.users.Analytics(c.Request.Context(), start, end)
	if err != nil {
		if errors.Is(err, users.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("analytics query", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch analytics"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

type chatRequest struct {
	Sample           string          `json:"sample"`
	UserData         json.RawMessage `json:"userData"`
	PastUserMessages []string        `json:"pastUserMessages"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sample text is required"})
		return
	}
	if strings.TrimSpace(req.Sample) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sample text is required"})
		return
	}
	if h.assistant == nil || h.bridge == nil {
		h.logger.Error("assistant is not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
		return
	}

	ctx := c.Request.Context()
	completion, err := h.assistant.Complete(ctx, ai.Request{
		Sample:           req.Sample,
		UserData:         req.UserData,
		PastUserMessages: req.PastUserMessages,
	})
	if err != nil {
		h.logger.Error("completion failed",
			zap.String("request_id", RequestIDFromContext(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process request"})
		return
	}
	parsed := h.bridge.Process(ctx, completion.Content, req.UserData)
	if parsed.ActionResult != nil {
		h.logger.Info("assistant action executed",
			zap.String("request_id", RequestIDFromContext(c)),
			zap.ByteString("action", parsed.Action),
			zap.Bool("success", parsed.ActionResult.Success))
	}
	c.JSON(http.StatusOK, gin.H{
		"completion": completion,
		"parsed":     parsed,
	})
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *Handler) sendEmail(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	if h.mailer == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "email is not configured"})
		return
	}
	result, err := h.mailer.Send(c.Request.Context(), req.To, req.Subject, req.Body)
	if err != nil {
		if errors.Is(err, notify.ErrRecipientRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}
