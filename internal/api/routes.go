package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/docket/internal/blob"
	"github.com/zulandar/docket/internal/issue"
	"github.com/zulandar/docket/internal/models"
	"gorm.io/gorm"
)

type handlers struct {
	db           *gorm.DB
	svc          *issue.Service
	blobs        *blob.Store
	log          *slog.Logger
	maxUpload    int64
	feedInterval time.Duration
}

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := router.Group("/api", h.actor)
	api.POST("/issues", h.createIssue)
	api.GET("/issues/:id", h.getIssue)
	api.PATCH("/issues/:id", h.updateIssue)
	api.DELETE("/issues/:id", h.deleteIssue)
	api.GET("/issues/:id/history", h.history)
	api.POST("/issues/:id/clone", h.cloneIssue)
	api.POST("/issues/:id/state", h.changeState)
	api.POST("/issues/:id/assign", h.reassign)
	api.POST("/issues/:id/suspend", h.suspend)
	api.POST("/issues/:id/resume", h.resume)
	api.POST("/issues/:id/comments", h.comment)
	api.POST("/issues/:id/files", h.attach)
	api.POST("/issues/:id/dependencies", h.addDependencies)
	api.DELETE("/issues/:id/dependencies", h.removeDependencies)
	api.GET("/files/:id", h.download)
	api.DELETE("/files/:id", h.deleteFile)
	api.GET("/states/:id/fields", h.stateFields)
	api.GET("/events/stream", h.feed)

	api.POST("/read", h.bulk((*issue.Service).MarkAsRead))
	api.POST("/unread", h.bulk((*issue.Service).MarkAsUnread))
	api.POST("/watch", h.bulk((*issue.Service).Watch))
	api.POST("/unwatch", h.bulk((*issue.Service).Unwatch))
}

// actor resolves the acting user from ActorHeader, by id or by email.
func (h *handlers) actor(c *gin.Context) {
	ref := strings.TrimSpace(c.GetHeader(ActorHeader))
	if ref == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing " + ActorHeader + " header"})
		return
	}
	var user models.User
	q := h.db.WithContext(c.Request.Context())
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		q = q.Where("id = ?", id)
	} else {
		q = q.Where("email = ?", ref)
	}
	if err := q.Take(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "unknown actor"})
			return
		}
		h.fail(c, err)
		return
	}
	if user.IsDisabled {
		c.AbortWithStatusJSON(http.StatusForbidden, errorBody{Error: "actor is disabled"})
		return
	}
	c.Set("actor", &user)
	c.Next()
}

func actorOf(c *gin.Context) *models.User {
	u, _ := c.MustGet("actor").(*models.User)
	return u
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badInput(c, fmt.Sprintf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return uint(id), true
}

// fieldInput is the JSON form of field values, keyed by field id.
type fieldInput map[string]any

func (in fieldInput) values() (map[uint]any, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[uint]any, len(in))
	for k, v := range in {
		id, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid field id %q", k)
		}
		out[uint(id)] = v
	}
	return out, nil
}

func bindFields(c *gin.Context, in fieldInput) (map[uint]any, bool) {
	values, err := in.values()
	if err != nil {
		badInput(c, err.Error())
		return nil, false
	}
	return values, true
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badInput(c, err.Error())
		return false
	}
	return true
}

type createRequest struct {
	TemplateID    uint       `json:"template_id" binding:"required"`
	Subject       string     `json:"subject"`
	ResponsibleID *uint      `json:"responsible_id"`
	Fields        fieldInput `json:"fields"`
}

func (h *handlers) createIssue(c *gin.Context) {
	var req createRequest
	if !bind(c, &req) {
		return
	}
	fields, ok := bindFields(c, req.Fields)
	if !ok {
		return
	}
	created, err := h.svc.Create(c.Request.Context(), actorOf(c), issue.CreateIssue{
		TemplateID:    req.TemplateID,
		Subject:       req.Subject,
		ResponsibleID: req.ResponsibleID,
		Fields:        fields,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondIssue(c, http.StatusCreated, created.ID)
}

type cloneRequest struct {
	Subject       string     `json:"subject"`
	ResponsibleID *uint      `json:"responsible_id"`
	Fields        fieldInput `json:"fields"`
}

func (h *handlers) cloneIssue(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req cloneRequest
	if !bind(c, &req) {
		return
	}
	fields, ok := bindFields(c, req.Fields)
	if !ok {
		return
	}
	created, err := h.svc.Clone(c.Request.Context(), actorOf(c), issue.CloneIssue{
		IssueID:       id,
		Subject:       req.Subject,
		ResponsibleID: req.ResponsibleID,
		Fields:        fields,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondIssue(c, http.StatusCreated, created.ID)
}

func (h *handlers) respondIssue(c *gin.Context, status int, id uint) {
	detail, err := h.svc.Get(c.Request.Context(), actorOf(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, viewDetail(detail))
}

func (h *handlers) getIssue(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	h.respondIssue(c, http.StatusOK, id)
}

type updateRequest struct {
	Subject *string    `json:"subject"`
	Fields  fieldInput `json:"fields"`
}

func (h *handlers) updateIssue(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateRequest
	if !bind(c, &req) {
		return
	}
	fields, ok := bindFields(c, req.Fields)
	if !ok {
		return
	}
	err := h.svc.Update(c.Request.Context(), actorOf(c), issue.UpdateIssue{IssueID: id, Subject: req.Subject, Fields: fields})
	h.done(c, err)
}

func (h *handlers) deleteIssue(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	h.done(c, h.svc.Delete(c.Request.Context(), actorOf(c), id))
}

func (h *handlers) history(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entries, err := h.svc.History(c.Request.Context(), actorOf(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewHistory(entries))
}

type stateRequest struct {
	StateID       uint       `json:"state_id" binding:"required"`
	ResponsibleID *uint      `json:"responsible_id"`
	Fields        fieldInput `json:"fields"`
}

func (h *handlers) changeState(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req stateRequest
	if !bind(c, &req) {
		return
	}
	fields, ok := bindFields(c, req.Fields)
	if !ok {
		return
	}
	err := h.svc.ChangeState(c.Request.Context(), actorOf(c), issue.ChangeState{
		IssueID:       id,
		StateID:       req.StateID,
		ResponsibleID: req.ResponsibleID,
		Fields:        fields,
	})
	h.done(c, err)
}

type assignRequest struct {
	ResponsibleID uint `json:"responsible_id" binding:"required"`
}

func (h *handlers) reassign(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req assignRequest
	if !bind(c, &req) {
		return
	}
	h.done(c, h.svc.Reassign(c.Request.Context(), actorOf(c), issue.ReassignIssue{IssueID: id, ResponsibleID: req.ResponsibleID}))
}

type suspendRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *handlers) suspend(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req suspendRequest
	if !bind(c, &req) {
		return
	}
	h.done(c, h.svc.Suspend(c.Request.Context(), actorOf(c), issue.SuspendIssue{IssueID: id, Date: req.Date}))
}

func (h *handlers) resume(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	h.done(c, h.svc.Resume(c.Request.Context(), actorOf(c), id))
}

type commentRequest struct {
	Body    string `json:"body"`
	Private bool   `json:"private"`
}

func (h *handlers) comment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req commentRequest
	if !bind(c, &req) {
		return
	}
	h.done(c, h.svc.Comment(c.Request.Context(), actorOf(c), issue.AddComment{IssueID: id, Body: req.Body, Private: req.Private}))
}

// attach stages the multipart "file" part in the blob store before handing
// it to the service, which moves it into place.
func (h *handlers) attach(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if h.blobs == nil {
		h.fail(c, fmt.Errorf("api: no blob store configured"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		badInput(c, "missing or oversized multipart part \"file\"")
		return
	}
	src, err := header.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer src.Close()

	tmp, err := h.blobs.TempFile()
	if err != nil {
		h.fail(c, err)
		return
	}
	size, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		h.blobs.Fs().Remove(tmp.Name())
		h.fail(c, fmt.Errorf("api: stage upload: %w", err))
		return
	}

	file, err := h.svc.Attach(c.Request.Context(), actorOf(c), issue.AttachFile{IssueID: id, File: issue.Upload{
		Name:     header.Filename,
		Size:     size,
		MimeType: header.Header.Get("Content-Type"),
		TempPath: tmp.Name(),
	}})
	if err != nil {
		h.blobs.Fs().Remove(tmp.Name())
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewFile(file))
}

func (h *handlers) download(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	file, err := h.svc.File(c.Request.Context(), actorOf(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.blobs == nil {
		h.fail(c, fmt.Errorf("api: no blob store configured"))
		return
	}
	r, err := h.blobs.Open(file.UUID)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer r.Close()
	c.DataFromReader(http.StatusOK, file.FileSize, file.MimeType, r, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.FileName),
	})
}

func (h *handlers) deleteFile(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	h.done(c, h.svc.DeleteFile(c.Request.Context(), actorOf(c), id))
}

type idsRequest struct {
	Issues []uint `json:"issues"`
}

func (h *handlers) addDependencies(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req idsRequest
	if !bind(c, &req) {
		return
	}
	h.done(c, h.svc.AddDependencies(c.Request.Context(), actorOf(c), issue.AddDependencies{IssueID: id, Dependencies: req.Issues}))
}

func (h *handlers) removeDependencies(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req idsRequest
	if !bind(c, &req) {
		return
	}
	h.done(c, h.svc.RemoveDependencies(c.Request.Context(), actorOf(c), issue.RemoveDependencies{IssueID: id, Dependencies: req.Issues}))
}

func (h *handlers) stateFields(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	fields, err := h.svc.StateFields(c.Request.Context(), actorOf(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewFields(fields))
}

type bulkCommand func(s *issue.Service, ctx context.Context, actor *models.User, ids []uint) error

// bulk serves the relation commands taking a set of issue ids.
func (h *handlers) bulk(cmd bulkCommand) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req idsRequest
		if !bind(c, &req) {
			return
		}
		h.done(c, cmd(h.svc, c.Request.Context(), actorOf(c), req.Issues))
	}
}

// done answers a command without a result.
func (h *handlers) done(c *gin.Context, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
