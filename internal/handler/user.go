package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xenking/eshop/internal/domain/user"
)

func (h *Handler) mountUsers(g *gin.RouterGroup) {
	g.Use(h.protect)
	g.GET("/getMe", h.getMe)
	g.PUT("/changeMyPassword", h.changeMyPassword)
	g.PUT("/updateMe", h.updateMe)
	g.DELETE("/deleteMe", h.deleteMe)

	r := resource[user.User]{
		store:   h.stores.Users,
		search:  []string{"name", "email", "phone"},
		present: h.presentUser,
	}
	admin := g.Group("", allowedTo(staff...))
	admin.PUT("/changePassword/:id", h.changeUserPassword)
	admin.GET("", getAll(r, nil))
	admin.POST("", createOne(r, buildChecked(user.New)))
	admin.GET("/:id", getOne(r))
	admin.PUT("/:id", h.updateUser)
	admin.DELETE("/:id", deleteOne(r))
}

func (h *Handler) getMe(c *gin.Context) {
	u, err := h.services.Users.Get(c.Request.Context(), identity(c).UserID)
	if err != nil {
		abort(c, err)
		return
	}
	h.presentUser(u)
	c.JSON(http.StatusOK, gin.H{"data": u})
}

// changeMyPassword invalidates older tokens and hands out a fresh one.
func (h *Handler) changeMyPassword(c *gin.Context) {
	var in user.ChangePasswordInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.services.Users.ChangePassword(c.Request.Context(), identity(c).UserID, in)
	if err != nil {
		abort(c, err)
		return
	}
	token, err := h.services.Auth.IssueToken(u.ID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "token": token})
}

func (h *Handler) updateMe(c *gin.Context) {
	var in user.ProfileInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.services.Users.UpdateProfile(c.Request.Context(), identity(c).UserID, in)
	if err != nil {
		abort(c, err)
		return
	}
	h.presentUser(u)
	c.JSON(http.StatusOK, gin.H{"data": u})
}

func (h *Handler) deleteMe(c *gin.Context) {
	if err := h.services.Users.Deactivate(c.Request.Context(), identity(c).UserID); err != nil {
		abort(c, err)
		return
	}
	noContent(c)
}

func (h *Handler) changeUserPassword(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var in user.SetPasswordInput
	if !bindJSON(c, &in) {
		return
	}
	if _, err := h.services.Users.SetPassword(c.Request.Context(), id, in); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "message": "Password updated successfully."})
}

func (h *Handler) updateUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var p user.Patch
	if !bindJSON(c, &p) {
		return
	}
	u, err := h.services.Users.Update(c.Request.Context(), id, p)
	if err != nil {
		abort(c, err)
		return
	}
	h.presentUser(u)
	c.JSON(http.StatusOK, gin.H{"data": u})
}

type wishlistInput struct {
	ProductID string `json:"productId" binding:"required,uuid"`
}

func (h *Handler) mountWishlist(g *gin.RouterGroup) {
	g.Use(h.protect, allowedTo(user.RoleUser))
	g.POST("", h.addToWishlist)
	g.GET("", h.getWishlist)
	g.DELETE("/:productId", h.removeFromWishlist)
}

func (h *Handler) addToWishlist(c *gin.Context) {
	var in wishlistInput
	if !bindJSON(c, &in) {
		return
	}
	list, err := h.services.Users.AddToWishlist(c.Request.Context(), identity(c).UserID, in.ProductID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "message": "Product added successfully to your wishlist.", "data": list})
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	productID, ok := idParam(c, "productId")
	if !ok {
		return
	}
	list, err := h.services.Users.RemoveFromWishlist(c.Request.Context(), identity(c).UserID, productID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "message": "Product removed successfully from your wishlist.", "data": list})
}

func (h *Handler) getWishlist(c *gin.Context) {
	products, err := h.services.Users.Wishlist(c.Request.Context(), identity(c).UserID)
	if err != nil {
		abort(c, err)
		return
	}
	for i := range products {
		h.presentProduct(&products[i])
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "results": len(products), "data": products})
}

func (h *Handler) mountAddresses(g *gin.RouterGroup) {
	g.Use(h.protect, allowedTo(user.RoleUser))
	g.POST("", h.addAddress)
	g.GET("", h.getAddresses)
	g.DELETE("/:addressId", h.removeAddress)
}

func (h *Handler) addAddress(c *gin.Context) {
	var in user.AddressInput
	if !bindJSON(c, &in) {
		return
	}
	list, err := h.services.Users.AddAddress(c.Request.Context(), identity(c).UserID, in)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "message": "Address added successfully.", "data": list})
}

func (h *Handler) removeAddress(c *gin.Context) {
	addressID, ok := idParam(c, "addressId")
	if !ok {
		return
	}
	list, err := h.services.Users.RemoveAddress(c.Request.Context(), identity(c).UserID, addressID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "message": "Address removed successfully.", "data": list})
}

func (h *Handler) getAddresses(c *gin.Context) {
	list, err := h.services.Users.Addresses(c.Request.Context(), identity(c).UserID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": success, "results": len(list), "data": list})
}
