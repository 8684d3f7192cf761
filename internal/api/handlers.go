package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/detector"
	"github.com/0x6d61/sec360/internal/metrics"
	"github.com/0x6d61/sec360/internal/scoreboard"
	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/session"
	"github.com/0x6d61/sec360/internal/store"
)

// DefaultMaxCodeBytes bounds the size of submitted code.
const DefaultMaxCodeBytes = 1 << 20

// Handlers contains the HTTP handlers.
type Handlers struct {
	sessions     *session.Manager
	catalog      *catalog.Catalog
	scorer       *scoring.Scorer
	records      store.Gateway
	logger       *slog.Logger
	limiter      *userLimiter
	maxCodeBytes int
	minSessions  int
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handlers) {
		h.logger = l
	}
}

// WithSubmitRateLimit limits submissions per user to rps with the given
// burst.
func WithSubmitRateLimit(rps float64, burst int) Option {
	return func(h *Handlers) {
		h.limiter = newUserLimiter(rps, burst)
	}
}

// WithMaxCodeBytes rejects code larger than n bytes.
func WithMaxCodeBytes(n int) Option {
	return func(h *Handlers) {
		h.maxCodeBytes = n
	}
}

// WithMinSessions sets how many records a user needs to appear on the
// leaderboard.
func WithMinSessions(n int) Option {
	return func(h *Handlers) {
		h.minSessions = n
	}
}

// NewHandlers creates handlers over the session manager and record store.
func NewHandlers(mgr *session.Manager, cat *catalog.Catalog, scorer *scoring.Scorer, records store.Gateway, opts ...Option) *Handlers {
	h := &Handlers{
		sessions:     mgr,
		catalog:      cat,
		scorer:       scorer,
		records:      records,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxCodeBytes: DefaultMaxCodeBytes,
		minSessions:  scoreboard.DefaultMinSessions,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStartSession handles POST /v1/sessions.
//
//	201 Created: session.Handle
//	400 Bad Request: missing user_id
//	409 Conflict: the user already has an active session
func (h *Handlers) HandleStartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "request body must contain a non-empty user_id",
			Code:  CodeInvalidRequest,
		})
		return
	}

	handle, err := h.sessions.StartSession(c.Request.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, session.ErrSessionConflict) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "you already have an active session; resume it or end it before starting a new one",
				Code:  CodeSessionConflict,
			})
			return
		}
		h.internalError(c, "start session failed", err)
		return
	}
	c.JSON(http.StatusCreated, handle)
}

// HandleSubmit handles POST /v1/sessions/:user/submissions.
//
//	200 OK: SubmitResponse (duplicate submissions included)
//	404 Not Found: no active session
//	413 Request Entity Too Large: code exceeds the size limit
//	429 Too Many Requests: submission rate exceeded
func (h *Handlers) HandleSubmit(c *gin.Context) {
	userID := c.Param("user")
	code, ok := h.bindCode(c)
	if !ok {
		return
	}
	if !h.sessions.HasActiveSession(userID) {
		h.noSession(c)
		return
	}
	if !h.limiter.allow(userID) {
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "too many submissions; wait a moment and try again",
			Code:  CodeRateLimited,
		})
		return
	}

	res, err := h.sessions.Submit(c.Request.Context(), userID, code)
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			h.noSession(c)
			return
		}
		h.internalError(c, "submit failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// HandleEndSession handles DELETE /v1/sessions/:user.
//
//	200 OK: EndSessionResponse, with a warning if persistence timed out
//	404 Not Found: no active session
func (h *Handlers) HandleEndSession(c *gin.Context) {
	userID := c.Param("user")
	rec, err := h.sessions.EndSession(c.Request.Context(), userID, c.Query("reason"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, EndSessionResponse{Record: rec})
	case errors.Is(err, session.ErrPersistenceTimeout):
		h.logger.Warn("session ended without persisted record", "user_id", userID, "error", err)
		c.JSON(http.StatusOK, EndSessionResponse{
			Record:  rec,
			Warning: "your session has ended, but its record could not be saved yet; it will be retried automatically",
		})
	case errors.Is(err, session.ErrNoActiveSession):
		h.noSession(c)
	default:
		h.internalError(c, "end session failed", err)
	}
}

// HandleActiveSessions handles GET /v1/sessions.
func (h *Handlers) HandleActiveSessions(c *gin.Context) {
	active := h.sessions.ActiveSessions()
	if active == nil {
		active = []session.ActiveSummary{}
	}
	c.JSON(http.StatusOK, ActiveSessionsResponse{Sessions: active})
}

// HandleScan handles POST /v1/scan: detection and scoring without a
// session.
func (h *Handlers) HandleScan(c *gin.Context) {
	code, ok := h.bindCode(c)
	if !ok {
		return
	}
	res := detector.Detect(code, h.catalog)
	bd := h.scorer.Score(res, scoring.SessionStats{})
	for _, f := range res.Flags {
		metrics.ObserveFlag(string(f.Category), string(f.Tier))
	}
	c.JSON(http.StatusOK, ScanResponse{
		Fingerprint: detector.Fingerprint(code),
		Detection:   res,
		Score:       bd,
	})
}

// HandleListRecords handles GET /v1/records?user=&limit=.
func (h *Handlers) HandleListRecords(c *gin.Context) {
	filter := store.RecordFilter{UserID: c.Query("user")}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a non-negative integer",
				Code:  CodeInvalidRequest,
			})
			return
		}
		filter.Limit = n
	}

	recs, err := h.records.ListRecords(c.Request.Context(), filter)
	if err != nil {
		h.internalError(c, "list records failed", err)
		return
	}
	if recs == nil {
		recs = []*store.RecordSummary{}
	}
	c.JSON(http.StatusOK, RecordsResponse{Records: recs})
}

// HandleGetRecord handles GET /v1/records/:id.
func (h *Handlers) HandleGetRecord(c *gin.Context) {
	rec, err := h.records.LoadRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "load record failed", err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "record not found",
			Code:  CodeNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandleLeaderboard handles GET /v1/leaderboard?limit=.
func (h *Handlers) HandleLeaderboard(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "limit must be a non-negative integer",
			Code:  CodeInvalidRequest,
		})
		return
	}

	recs, err := h.records.ListRecords(c.Request.Context(), store.RecordFilter{})
	if err != nil {
		h.internalError(c, "list records failed", err)
		return
	}
	c.JSON(http.StatusOK, LeaderboardResponse{
		MinSessions: h.minSessions,
		Entries:     scoreboard.Leaderboard(recs, h.minSessions, limit),
		Statistics:  scoreboard.Summarize(recs, h.scorer.Thresholds()),
	})
}

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "ok",
		ActiveSessions: len(h.sessions.ActiveSessions()),
		PendingRecords: h.sessions.Pending(),
		CatalogVersion: h.catalog.Version(),
	})
}

func (h *Handlers) bindCode(c *gin.Context) (string, bool) {
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "request body must be JSON with a code field",
			Code:  CodeInvalidRequest,
		})
		return "", false
	}
	if h.maxCodeBytes > 0 && len(req.Code) > h.maxCodeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "code is too large; submit a smaller snippet",
			Code:  CodeCodeTooLarge,
		})
		return "", false
	}
	return req.Code, true
}

func (h *Handlers) noSession(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error: "no active session; start a session first",
		Code:  CodeNoSession,
	})
}

func (h *Handlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: "internal error",
		Code:  CodeInternal,
	})
}
