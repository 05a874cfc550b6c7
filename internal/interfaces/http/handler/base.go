package handler

import (
	"errors"
	"net/http"

	appdelivery "github.com/erp/delivery/internal/application/delivery"
	"github.com/erp/delivery/internal/domain/shared"
	"github.com/erp/delivery/internal/infrastructure/printing"
	"github.com/erp/delivery/internal/interfaces/http/dto"
	"github.com/erp/delivery/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common response helpers for HTTP handlers
type BaseHandler struct {
	logger *zap.Logger
}

// NewBaseHandler creates a new base handler
func NewBaseHandler(logger *zap.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// Success sends a 200 response with data
func (h *BaseHandler) Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 response with data
func (h *BaseHandler) Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the status derived from the code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	status := dto.GetHTTPStatus(code)
	c.JSON(status, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 response for malformed input
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// HandleError inspects an error chain and sends the appropriate response.
// Domain errors keep their code and message; render errors surface as a
// gateway failure; anything else becomes an opaque 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		h.Error(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
		return
	}

	var renderErr *printing.RenderError
	if errors.As(err, &renderErr) {
		h.logger.Error("delivery note rendering failed",
			zap.String("request_id", getRequestID(c)),
			zap.String("render_code", renderErr.Code),
			zap.Error(err))
		h.Error(c, dto.ErrCodeRenderFailed, "Could not generate the delivery note")
		return
	}

	h.logger.Error("unhandled error",
		zap.String("request_id", getRequestID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	h.Error(c, dto.ErrCodeInternal, "An internal error occurred")
}

// getRequestID retrieves the request ID set by the middleware
func getRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// callerFromContext builds the application-level caller identity from the
// JWT claims. Returns a zero-value caller for anonymous requests.
func callerFromContext(c *gin.Context) appdelivery.Caller {
	claims, ok := middleware.GetJWTClaims(c)
	if !ok {
		return appdelivery.Caller{}
	}

	caller := appdelivery.Caller{
		Username:     claims.Username,
		CustomerCode: claims.CustomerCode,
		Role:         claims.Role,
	}
	if userID, err := claims.GetUserUUID(); err == nil {
		caller.UserID = userID
	}
	return caller
}
