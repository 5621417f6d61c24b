package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/apperr"
)

const serverErrorMessage = "Something went very wrong!"

func errRouteNotFound(path string) error {
	return apperr.NotFound("Can't find this route: %s", path)
}

// abort records err for renderErrors and stops the chain.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// renderErrors writes the envelope of the last error recorded by a handler.
func (h *Handler) renderErrors(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}
	h.writeError(c, c.Errors.Last().Err)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if e, ok := apperr.From(err); ok {
		c.JSON(statusOf(e.Kind), gin.H{"status": "fail", "message": e.Message})
		return
	}

	zctx.From(c.Request.Context()).Error("Request failed",
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	if h.cfg.Development {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  "error",
			"message": err.Error(),
			"error":   fmt.Sprintf("%T", err),
			"stack":   fmt.Sprintf("%+v", err),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": serverErrorMessage})
}

// bindJSON decodes and validates the request body into v.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("Invalid request body: %s", err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Invalid("%s", strings.Join(msgs, " "))
}

func fieldMessage(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", f)
	case "email":
		return "Invalid email address."
	case "uuid":
		return fmt.Sprintf("Invalid %s id format.", f)
	case "min":
		return fmt.Sprintf("%s is too short or too small (min %s).", f, fe.Param())
	case "max":
		return fmt.Sprintf("%s is too long or too large (max %s).", f, fe.Param())
	case "len":
		return fmt.Sprintf("%s must have length %s.", f, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", f, fe.Param())
	case "e164":
		return "Invalid phone number."
	default:
		return fmt.Sprintf("%s is invalid (%s).", f, fe.Tag())
	}
}

// idParam reads a uuid path parameter.
func idParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if err := uuid.Validate(v); err != nil {
		abort(c, apperr.Invalid("Invalid %s: %s.", name, v))
		return "", false
	}
	return v, true
}
