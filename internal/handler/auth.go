package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/auth"
	"github.com/xenking/eshop/internal/domain/user"
)

// protect authenticates the bearer token and stores the caller's identity
// in the request context.
func (h *Handler) protect(c *gin.Context) {
	var token string
	if v, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found {
		token = strings.TrimSpace(v)
	}
	id, err := h.services.Auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		abort(c, err)
		return
	}
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
	c.Next()
}

// allowedTo admits authenticated callers holding one of the roles.
func allowedTo(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Require(identity(c), roles...); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

var staff = []user.Role{user.RoleAdmin, user.RoleManager}

func identity(c *gin.Context) auth.Identity {
	id, _ := auth.FromContext(c.Request.Context())
	return id
}

func (h *Handler) mountAuth(g *gin.RouterGroup) {
	g.POST("/signup", h.signup)
	g.POST("/login", h.login)
	g.POST("/forgotPassword", h.forgotPassword)
	g.POST("/verifyResetCode", h.verifyResetCode)
	g.PUT("/resetPassword", h.resetPassword)
}

func (h *Handler) signup(c *gin.Context) {
	var in auth.SignupInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.services.Auth.Signup(c.Request.Context(), in)
	if err != nil {
		abort(c, err)
		return
	}
	h.presentUser(s.User)
	c.JSON(http.StatusCreated, gin.H{"data": s.User, "token": s.Token})
}

func (h *Handler) login(c *gin.Context) {
	var in auth.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.services.Auth.Login(c.Request.Context(), in)
	if err != nil {
		abort(c, err)
		return
	}
	h.presentUser(s.User)
	c.JSON(http.StatusOK, gin.H{"data": s.User, "token": s.Token})
}

func (h *Handler) forgotPassword(c *gin.Context) {
	var in auth.ForgotPasswordInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.services.Auth.ForgotPassword(c.Request.Context(), in); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "message": "Reset code sent to your email."})
}

func (h *Handler) verifyResetCode(c *gin.Context) {
	var in auth.VerifyResetCodeInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.services.Auth.VerifyResetCode(c.Request.Context(), in); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success})
}

func (h *Handler) resetPassword(c *gin.Context) {
	var in auth.ResetPasswordInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.services.Auth.ResetPassword(c.Request.Context(), in)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": s.Token})
}
