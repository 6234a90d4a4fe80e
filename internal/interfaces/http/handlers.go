package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/application/service"
	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine workflow.LifecycleEngine
	export service.ExportService
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine workflow.LifecycleEngine, export service.ExportService, logger Logger) *Handlers {
	return &Handlers{
		engine: engine,
		export: export,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateOfferRequest is the body of POST /api/offers
type CreateOfferRequest struct {
	ClientID        string `json:"client_id"`
	AssignedTo      string `json:"assigned_to,omitempty"`
	LinkedRequestID string `json:"linked_request_id,omitempty"`
	entity.Contents
}

// TransitionRequest is the body of POST /api/offers/:id/transitions
type TransitionRequest struct {
	Event   string `json:"event"`
	Version *int64 `json:"version,omitempty"`
	workflow.Payload
}

// AnnotationRequest is the body of POST /api/offers/:id/annotations
type AnnotationRequest struct {
	Note string `json:"note"`
}

// ListOffersRequest represents query parameters for listing and exporting offers
type ListOffersRequest struct {
	Status     string `form:"status"`
	AssignedTo string `form:"assigned_to"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// ActionsResponse lists the events the caller may fire now
type ActionsResponse struct {
	OfferID string             `json:"offer_id"`
	Status  domainwf.State     `json:"status"`
	Version int64              `json:"version"`
	Actions []domainwf.Trigger `json:"actions"`
}

// CountResponse is the pending approvals dashboard number
type CountResponse struct {
	Status domainwf.State `json:"status"`
	Count  int            `json:"count"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateOffer handles POST /api/offers
func (h *Handlers) CreateOffer(c *gin.Context) {
	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	offer, err := h.engine.Create(c.Request.Context(), workflow.CreateCommand{
		ClientID:        req.ClientID,
		Contents:        req.Contents,
		AssignedTo:      req.AssignedTo,
		LinkedRequestID: req.LinkedRequestID,
		Actor:           actorFrom(c),
	})
	if err != nil {
		h.writeError(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: offer})
}

// ListOffers handles GET /api/offers
func (h *Handlers) ListOffers(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	page, err := h.engine.List(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, "list", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: page})
}

// CountPendingApprovals handles GET /api/offers/pending-approvals/count
func (h *Handlers) CountPendingApprovals(c *gin.Context) {
	count, err := h.engine.CountByStatus(c.Request.Context(), domainwf.StatePendingManagerApproval)
	if err != nil {
		h.writeError(c, "count", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    CountResponse{Status: domainwf.StatePendingManagerApproval, Count: count},
	})
}

// ExportOffers handles GET /api/offers/export
func (h *Handlers) ExportOffers(c *gin.Context) {
	filter, ok := bindFilter(c)
	if !ok {
		return
	}

	data, err := h.export.Export(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, "export", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, h.export.FileName()))
	c.Data(http.StatusOK, h.export.ContentType(), data)
}

// GetOffer handles GET /api/offers/:id
func (h *Handlers) GetOffer(c *gin.Context) {
	offer, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "get", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: offer})
}

// GetHistory handles GET /api/offers/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	records, err := h.engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "history", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// GetActions handles GET /api/offers/:id/actions
func (h *Handlers) GetActions(c *gin.Context) {
	offer, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, "actions", err)
		return
	}

	actions := h.engine.PermittedTriggers(offer, actorFrom(c))
	if actions == nil {
		actions = []domainwf.Trigger{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ActionsResponse{
			OfferID: offer.ID,
			Status:  offer.Status,
			Version: offer.Version,
			Actions: actions,
		},
	})
}

// Transition handles POST /api/offers/:id/transitions
func (h *Handlers) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Event) == "" {
		badRequest(c, "event is required")
		return
	}

	offer, err := h.engine.Transition(c.Request.Context(), workflow.TransitionCommand{
		OfferID:         c.Param("id"),
		Trigger:         domainwf.Trigger(req.Event),
		Actor:           actorFrom(c),
		Payload:         req.Payload,
		ExpectedVersion: req.Version,
	})
	if err != nil {
		h.writeError(c, "transition", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: offer})
}

// Annotate handles POST /api/offers/:id/annotations
func (h *Handlers) Annotate(c *gin.Context) {
	var req AnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	offer, err := h.engine.Annotate(c.Request.Context(), c.Param("id"), actorFrom(c), req.Note)
	if err != nil {
		h.writeError(c, "annotate", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: offer})
}

func bindFilter(c *gin.Context) (port.OfferFilter, bool) {
	var req ListOffersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return port.OfferFilter{}, false
	}

	return port.OfferFilter{
		Status:     domainwf.State(req.Status),
		AssignedTo: req.AssignedTo,
		Page:       req.Page,
		PageSize:   req.PageSize,
	}, true
}
