package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/haikubot/backend/internal/haiku"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const clientContextKey = "haikubot_client"

var (
	errMissingRepository   = errors.New("haiku repository dependency required")
	errMissingTokenManager = errors.New("token manager dependency required")
)

type TokenValidator interface {
	ValidateRequest(r *http.Request) (string, error)
}

type Dependencies struct {
	Repository   haiku.Repository
	TokenManager TokenValidator
	Logger       *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Repository == nil {
		return nil, errMissingRepository
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		repository: deps.Repository,
		tokens:     deps.TokenManager,
		logger:     logger,
	}

	router.GET("/haiku", handler.handleList)
	router.GET("/haiku/newest", handler.handleNewest)
	router.GET("/haiku/unposted", handler.handleUnposted)
	router.GET("/haiku/stats", handler.handleStats)
	router.GET("/haiku/by-author", handler.handleByAuthor)
	router.GET("/haiku/:id", handler.handleGet)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/haiku", handler.handleCreate)
	protected.POST("/haiku/:id/posted", handler.handleSetPosted)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	repository haiku.Repository
	tokens     TokenValidator
	logger     *zap.Logger
}

type createRequestPayload struct {
	Haiku  string     `json:"haiku"`
	Author string     `json:"author"`
	Posted bool       `json:"posted"`
	Date   *time.Time `json:"date"`
}

type statsResponsePayload struct {
	Stats []haiku.AuthorStat `json:"stats"`
}

type listResponsePayload struct {
	Haiku []haiku.Record `json:"haiku"`
}

func (h *httpHandler) handleList(c *gin.Context) {
	rawWeeks := c.Query("weeks")
	if rawWeeks == "" {
		records, err := h.repository.GetAll(c.Request.Context())
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, listResponsePayload{Haiku: nonNil(records)})
		return
	}

	weeks, err := strconv.Atoi(rawWeeks)
	if err != nil || weeks <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_weeks"})
		return
	}
	records, err := h.repository.GetAllWithinWeeks(c.Request.Context(), weeks)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload{Haiku: nonNil(records)})
}

func (h *httpHandler) handleNewest(c *gin.Context) {
	limit, ok := optionalPositiveInt(c, "limit")
	if !ok {
		return
	}
	records, err := h.repository.GetNewest(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	c.JSON(http.StatusOK, listResponsePayload{Haiku: nonNil(records)})
}

func (h *httpHandler) handleUnposted(c *gin.Context) {
	records, err := h.repository.GetUnposted(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload{Haiku: nonNil(records)})
}

func (h *httpHandler) handleStats(c *gin.Context) {
	top, ok := optionalPositiveInt(c, "top")
	if !ok {
		return
	}
	stats, err := h.repository.GetStats(c.Request.Context(), top)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if stats == nil {
		stats = []haiku.AuthorStat{}
	}
	c.JSON(http.StatusOK, statsResponsePayload{Stats: stats})
}

func (h *httpHandler) handleByAuthor(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_query"})
		return
	}
	limit, ok := optionalPositiveInt(c, "limit")
	if !ok {
		return
	}
	records, err := h.repository.GetByAuthor(c.Request.Context(), query, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponsePayload{Haiku: nonNil(records)})
}

func (h *httpHandler) handleGet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	record, err := h.repository.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleCreate(c *gin.Context) {
	var request createRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	insert := haiku.InsertRequest{
		Text:   request.Haiku,
		Author: request.Author,
		Posted: request.Posted,
	}
	if request.Date != nil {
		insert.Date = *request.Date
	}

	record, err := h.repository.Insert(c.Request.Context(), insert)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("haiku created",
		zap.Int64("id", record.ID),
		zap.String("client", c.GetString(clientContextKey)))
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleSetPosted(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.repository.SetPosted(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("haiku marked posted",
		zap.Int64("id", id),
		zap.String("client", c.GetString(clientContextKey)))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	client, err := h.tokens.ValidateRequest(c.Request)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(clientContextKey, client)
	c.Next()
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, haiku.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, haiku.ErrValidation):
		status, code = http.StatusBadRequest, "invalid_request"
	}

	var storeErr *haiku.StoreError
	if errors.As(err, &storeErr) {
		code = storeErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("haiku request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func optionalPositiveInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + key})
		return 0, false
	}
	return value, true
}

func nonNil(records []haiku.Record) []haiku.Record {
	if records == nil {
		return []haiku.Record{}
	}
	return records
}
