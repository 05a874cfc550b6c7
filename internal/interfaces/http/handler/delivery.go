package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	appdelivery "github.com/erp/delivery/internal/application/delivery"
	"github.com/erp/delivery/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ArtifactService is the application service that issues delivery notes
type ArtifactService interface {
	BuildDeliveryNote(ctx context.Context, req appdelivery.BuildDeliveryNoteRequest) (*appdelivery.BuildDeliveryNoteResponse, error)
	GetNotePDF(ctx context.Context, path string) (io.ReadCloser, error)
}

// ConfirmationService is the application service that resolves and
// confirms delivery codes
type ConfirmationService interface {
	Resolve(ctx context.Context, code string, orderID int64) (*appdelivery.ResolveResponse, error)
	Confirm(ctx context.Context, caller appdelivery.Caller, req appdelivery.ConfirmRequest) (*appdelivery.ConfirmResponse, error)
}

// DeliveryHandler handles delivery note and confirmation endpoints
type DeliveryHandler struct {
	BaseHandler
	artifacts     ArtifactService
	confirmations ConfirmationService
}

// NewDeliveryHandler creates a new delivery handler
func NewDeliveryHandler(artifacts ArtifactService, confirmations ConfirmationService, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		BaseHandler:   NewBaseHandler(logger),
		artifacts:     artifacts,
		confirmations: confirmations,
	}
}

// RegisterRoutes registers the authenticated delivery routes
func (h *DeliveryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	notes := rg.Group("/delivery-notes")
	{
		notes.POST("", h.BuildDeliveryNote)
		notes.GET("/pdf/*filepath", h.DownloadPDF)
	}

	deliveries := rg.Group("/deliveries")
	{
		deliveries.POST("/confirm", h.Confirm)
	}
}

// RegisterPublicRoutes registers the QR landing page route on the engine
// root, outside the versioned API group. The path is printed on every
// delivery note, so it cannot move without reissuing artifacts.
func (h *DeliveryHandler) RegisterPublicRoutes(engine *gin.Engine, optionalAuth gin.HandlerFunc) {
	engine.GET("/confirmar-entrega", optionalAuth, h.ResolveCode)
}

// BuildDeliveryNote issues a fresh delivery code for an order and renders
// its printable note
// POST /api/v1/delivery-notes
func (h *DeliveryHandler) BuildDeliveryNote(c *gin.Context) {
	var req appdelivery.BuildDeliveryNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.ErrCodeInvalidInput, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.artifacts.BuildDeliveryNote(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, resp)
}

// ResolveCode classifies the (codigo, pedido) pair from the QR link
// GET /confirmar-entrega?codigo=...&pedido=...
func (h *DeliveryHandler) ResolveCode(c *gin.Context) {
	code := strings.TrimSpace(c.Query("codigo"))
	orderID, err := strconv.ParseInt(c.Query("pedido"), 10, 64)
	if err != nil {
		orderID = 0
	}

	resp, rerr := h.confirmations.Resolve(c.Request.Context(), code, orderID)
	if rerr != nil {
		h.HandleError(c, rerr)
		return
	}

	h.Success(c, resp)
}

// Confirm commits the hand-off for a pending delivery code
// POST /api/v1/deliveries/confirm
func (h *DeliveryHandler) Confirm(c *gin.Context) {
	var req appdelivery.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.ErrCodeInvalidInput, "Invalid request body: "+err.Error())
		return
	}

	caller := callerFromContext(c)
	resp, err := h.confirmations.Confirm(c.Request.Context(), caller, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, resp)
}

// DownloadPDF streams a stored delivery note PDF
// GET /api/v1/delivery-notes/pdf/*filepath
func (h *DeliveryHandler) DownloadPDF(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("filepath"), "/")
	if path == "" {
		h.Error(c, dto.ErrCodeNotFound, "Delivery note not found")
		return
	}

	reader, err := h.artifacts.GetNotePDF(c.Request.Context(), path)
	if err != nil {
		h.Error(c, dto.ErrCodeNotFound, "Delivery note not found")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `inline; filename="`+filenameFromPath(path)+`"`)
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.Warn("delivery note download interrupted",
			zap.String("path", path),
			zap.Error(err))
	}
}

func filenameFromPath(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
