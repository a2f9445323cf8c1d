// Subject HTTP handlers.
//
// This file exposes the REST surface of the subject engine:
//   - POST   /channels/{channel}/messages   (ingest a message)
//   - GET    /channels/{channel}/subjects   (list, paginated, ETag support)
//   - GET    /channels/{channel}/context    (context block for a responder)
//   - DELETE /channels/{channel}/subjects   (reset one channel)
//   - DELETE /subjects                      (reset every channel)
//   - GET    /subjects/{id}                 (subject with recent messages)
//   - GET    /subjects/{id}/messages        (transcript, optionally paginated, ETag support)
//
// Handlers are transport-thin: they validate input, call the engine and
// translate results into HTTP responses.
//
// Idempotency:
// When the client sends an Idempotency-Key and a previous ingestion with the
// same (channel, author, key) is still recorded, the stored subject/message
// ids are returned with `Idempotency-Replayed: true` and nothing is ingested.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/http/middleware"
	"github.com/tbourn/go-subject-engine/internal/repo"
	"github.com/tbourn/go-subject-engine/internal/services"
	"github.com/tbourn/go-subject-engine/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxDetailLimit  = 500
	maxChannelLen   = 128

	defaultIdempotencyTTL = 24 * time.Hour
)

// SubjectService is the engine surface consumed by the handlers.
//
// Implementations must be safe for concurrent use and honor ctx.
type SubjectService interface {
	RecordMessage(ctx context.Context, channelID, authorID, content string, at time.Time) (*services.Ingested, error)
	BuildContext(ctx context.Context, channelID string) (string, error)
	ListPage(ctx context.Context, channelID string, page, pageSize int) ([]domain.Subject, int64, error)
	Detail(ctx context.Context, subjectID string, limit int) (*services.SubjectDetail, error)
	Transcript(ctx context.Context, subjectID string) ([]domain.Message, error)
	TranscriptPage(ctx context.Context, subjectID string, page, pageSize int) ([]domain.Message, int64, error)
	ResetChannel(ctx context.Context, channelID string) (int64, error)
	ResetAll(ctx context.Context) (int64, error)
}

// Options carries the optional collaborators of Handlers.
type Options struct {
	// DB enables idempotent replays and ETags. Both are skipped when nil.
	DB *gorm.DB
	// IdempotencyTTL is how long a recorded key replays. Defaults to 24h.
	IdempotencyTTL time.Duration
	// MaxContentRunes rejects oversized messages at the edge. 0 disables.
	MaxContentRunes int
}

// Handlers aggregates the engine and settings store behind the routes.
type Handlers struct {
	svc      SubjectService
	settings *services.SettingsStore
	opts     Options
}

// New constructs Handlers. settings may be nil when the settings routes are
// not mounted.
func New(svc SubjectService, settings *services.SettingsStore, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &Handlers{svc: svc, settings: settings, opts: opts}
}

// userID returns the caller identity set by upstream middleware or the
// X-User-ID header, or "" when none is present.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

//
// DTOs
//

// PostMessageRequest is the JSON payload for ingesting a message.
type PostMessageRequest struct {
	// AuthorID identifies the sender. Falls back to the X-User-ID header.
	AuthorID string `json:"author_id" example:"u-42"`
	// Content is the raw message text. It must be non-empty.
	Content string `json:"content" binding:"required" example:"the deploy pipeline is broken again"`
	// Timestamp is when the message was sent (RFC 3339). Defaults to now.
	Timestamp *time.Time `json:"timestamp,omitempty" example:"2025-09-01T10:00:00Z"`
}

// PostMessageResponse reports where a message was filed.
type PostMessageResponse struct {
	SubjectID string `json:"subject_id" example:"0b6b2a3c-6a2f-4f0e-9d0e-3b8f3a1f2c11"`
	MessageID string `json:"message_id" example:"6f5e4d3c-2b1a-4c0d-8e9f-a1b2c3d4e5f6"`
	// Action is "create" or "reuse"; empty on replays.
	Action string `json:"action,omitempty" example:"reuse"`
	// Reason is the rule that decided the action; empty on replays.
	Reason string `json:"reason,omitempty" example:"similar"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSubjectsResponse is a page of a channel's subjects, most recent first.
type ListSubjectsResponse struct {
	Subjects   []domain.Subject `json:"subjects"`
	Pagination Pagination       `json:"pagination"`
}

// ContextResponse carries the plain-text context block of a channel.
type ContextResponse struct {
	ChannelID string `json:"channel_id"`
	Context   string `json:"context"`
}

// SubjectDetailResponse is a subject with its most recent messages.
type SubjectDetailResponse struct {
	Subject  domain.Subject   `json:"subject"`
	Messages []domain.Message `json:"messages"`
	Total    int64            `json:"total"`
}

// TranscriptResponse lists the messages of a subject, oldest first.
// Pagination is present only when the request asked for a page.
type TranscriptResponse struct {
	SubjectID  string           `json:"subject_id"`
	Messages   []domain.Message `json:"messages"`
	Pagination *Pagination      `json:"pagination,omitempty"`
}

// ResetResponse reports how many subjects a reset removed.
type ResetResponse struct {
	Deleted int64 `json:"deleted"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent converts CRLF/CR to LF, collapses blank-line runs and
// trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// channelParam returns the trimmed :channel path value, failing the request
// when it is blank or too long.
func channelParam(c *gin.Context) (string, bool) {
	ch := strings.TrimSpace(c.Param("channel"))
	if ch == "" || len(ch) > maxChannelLen {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("channel must be 1..%d bytes", maxChannelLen))
		return "", false
	}
	return ch, true
}

func subjectParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subject id must be a UUID")
		return "", false
	}
	return id, true
}

// notModified sets the ETag and reports whether the client already holds it.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func unixNano(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Ingest a channel message
// @Description Files the message into an existing subject of the channel or opens a new one.
// @Description Supports idempotency via the Idempotency-Key header (same key → same ids).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Author fallback when author_id is omitted"  example(u-42)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       channel          path    string  true  "Channel ID"
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     200  {object}  handlers.PostMessageResponse  "Assignment"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse        "Shutting down"
// @Failure     500  {object}  handlers.ErrorResponse        "Internal error"
// @Router      /channels/{channel}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	channelID, valid := channelParam(c)
	if !valid {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	authorID := strings.TrimSpace(req.AuthorID)
	if authorID == "" {
		authorID = userID(c)
	}

	content := sanitizeContent(req.Content)
	if limit := h.opts.MaxContentRunes; limit > 0 && utf8.RuneCountInString(content) > limit {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("content too long: max %d runes", limit))
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.opts.DB != nil {
		rec, err := repo.GetIdempotency(ctx, h.opts.DB, channelID, authorID, idemKey, time.Now().UTC())
		if err == nil && rec != nil {
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, PostMessageResponse{SubjectID: rec.SubjectID, MessageID: rec.MessageID})
			return
		}
	}

	var at time.Time
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	res, err := h.svc.RecordMessage(ctx, channelID, authorID, content, at)
	if err != nil {
		failService(c, err, ErrCodeIngestFailed)
		return
	}

	// Best effort: a concurrent request with the same key may have won.
	if idemKey != "" && h.opts.DB != nil {
		if _, err := repo.CreateIdempotency(ctx, h.opts.DB, channelID, authorID, idemKey, res.SubjectID, res.MessageID, h.opts.IdempotencyTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Str("channel_id", channelID).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, PostMessageResponse{
		SubjectID: res.SubjectID,
		MessageID: res.MessageID,
		Action:    res.Outcome.Action.String(),
		Reason:    string(res.Outcome.Reason),
	})
}

// ListSubjects godoc
// @ID          listSubjects
// @Summary     List a channel's subjects
// @Description Returns the channel's subjects, most recently active first.
// @Tags        Subjects
// @Produce     json
//
// @Param       channel    path   string  true  "Channel ID"
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSubjectsResponse
// @Success     304  "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /channels/{channel}/subjects [get]
func (h *Handlers) ListSubjects(c *gin.Context) {
	ctx := c.Request.Context()
	channelID, valid := channelParam(c)
	if !valid {
		return
	}

	// ETag pre-check (best effort).
	if h.opts.DB != nil {
		if count, maxTS, err := repo.SubjectsStats(ctx, h.opts.DB, channelID); err == nil {
			if notModified(c, fmt.Sprintf(`W/"subjects:%s:%d:%d"`, channelID, count, unixNano(maxTS))) {
				return
			}
		}
	}

	page, pageSize := utils.Page(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
	items, total, err := h.svc.ListPage(ctx, channelID, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListSubjectsResponse{
		Subjects: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetContext godoc
// @ID          getContext
// @Summary     Build the channel context
// @Description Returns the context block of the channel's most recent subject, or an empty string.
// @Tags        Subjects
// @Produce     json
// @Param       channel  path  string  true  "Channel ID"
// @Success     200  {object} handlers.ContextResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /channels/{channel}/context [get]
func (h *Handlers) GetContext(c *gin.Context) {
	channelID, valid := channelParam(c)
	if !valid {
		return
	}
	text, err := h.svc.BuildContext(c.Request.Context(), channelID)
	if err != nil {
		failService(c, err, ErrCodeContextFailed)
		return
	}
	ok(c, http.StatusOK, ContextResponse{ChannelID: channelID, Context: text})
}

// ResetChannel godoc
// @ID          resetChannel
// @Summary     Delete a channel's subjects
// @Tags        Subjects
// @Produce     json
// @Param       channel  path  string  true  "Channel ID"
// @Success     200  {object} handlers.ResetResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /channels/{channel}/subjects [delete]
func (h *Handlers) ResetChannel(c *gin.Context) {
	channelID, valid := channelParam(c)
	if !valid {
		return
	}
	n, err := h.svc.ResetChannel(c.Request.Context(), channelID)
	if err != nil {
		failService(c, err, ErrCodeResetFailed)
		return
	}
	ok(c, http.StatusOK, ResetResponse{Deleted: n})
}

// ResetAll godoc
// @ID          resetAll
// @Summary     Delete every subject of every channel
// @Tags        Subjects
// @Produce     json
// @Success     200  {object} handlers.ResetResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subjects [delete]
func (h *Handlers) ResetAll(c *gin.Context) {
	n, err := h.svc.ResetAll(c.Request.Context())
	if err != nil {
		failService(c, err, ErrCodeResetFailed)
		return
	}
	ok(c, http.StatusOK, ResetResponse{Deleted: n})
}

// GetSubject godoc
// @ID          getSubject
// @Summary     Get a subject
// @Description Returns the subject, its most recent messages (oldest first) and the total message count.
// @Tags        Subjects
// @Produce     json
// @Param       id     path   string  true  "Subject ID (UUID)"  format(uuid)
// @Param       limit  query  int     false "Recent messages"    minimum(1) maximum(500) default(30)
// @Success     200  {object} handlers.SubjectDetailResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subjects/{id} [get]
func (h *Handlers) GetSubject(c *gin.Context) {
	subjectID, valid := subjectParam(c)
	if !valid {
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 0)
	if limit > maxDetailLimit {
		limit = maxDetailLimit
	}
	d, err := h.svc.Detail(c.Request.Context(), subjectID, limit)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, SubjectDetailResponse{Subject: d.Subject, Messages: d.Messages, Total: d.Total})
}

// GetTranscript godoc
// @ID          getTranscript
// @Summary     Transcript of a subject
// @Description Returns every message of the subject, oldest first. With page or page_size only that page is returned.
// @Tags        Subjects
// @Produce     json
// @Param       id         path   string  true  "Subject ID (UUID)"  format(uuid)
// @Param       page       query  int     false "Page number"        minimum(1)
// @Param       page_size  query  int     false "Items per page"     minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.TranscriptResponse
// @Success     304  "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Subject not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /subjects/{id}/messages [get]
func (h *Handlers) GetTranscript(c *gin.Context) {
	ctx := c.Request.Context()
	subjectID, valid := subjectParam(c)
	if !valid {
		return
	}

	_, hasPage := c.GetQuery("page")
	_, hasSize := c.GetQuery("page_size")
	paged := hasPage || hasSize
	page, pageSize := utils.Page(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)

	if h.opts.DB != nil {
		if count, maxTS, err := repo.MessagesStats(ctx, h.opts.DB, subjectID); err == nil && count > 0 {
			etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, subjectID, count, unixNano(maxTS))
			if paged {
				etag = fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, subjectID, count, unixNano(maxTS), page, pageSize)
			}
			if notModified(c, etag) {
				return
			}
		}
	}

	if !paged {
		msgs, err := h.svc.Transcript(ctx, subjectID)
		if err != nil {
			failService(c, err, ErrCodeListFailed)
			return
		}
		ok(c, http.StatusOK, TranscriptResponse{SubjectID: subjectID, Messages: msgs})
		return
	}

	msgs, total, err := h.svc.TranscriptPage(ctx, subjectID, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, TranscriptResponse{
		SubjectID: subjectID,
		Messages:  msgs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
