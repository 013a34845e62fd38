package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quicktab/self-order-api/internal/dto"
	"github.com/quicktab/self-order-api/internal/model"
	"github.com/quicktab/self-order-api/internal/service"
)

type AuthHandler struct {
	authSvc       *service.AuthService
	restaurantSvc *service.RestaurantService
}

func NewAuthHandler(authSvc *service.AuthService, restaurantSvc *service.RestaurantService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, restaurantSvc: restaurantSvc}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authSvc.Register(c.Request.Context(), req.Email, req.Password, req.DisplayName, model.RoleCustomer)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// StaffRegister creates the staff account and its restaurant in one
// flow, mirroring the create-restaurant signup screen.
func (h *AuthHandler) StaffRegister(c *gin.Context) {
	var req dto.StaffRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authSvc.Register(c.Request.Context(), req.Email, req.Password, req.RestaurantName, model.RoleStaff)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	restaurant, err := h.restaurantSvc.Create(c.Request.Context(), resp.User.ID, req.RestaurantName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      resp.Token,
		"user":       resp.User,
		"restaurant": toRestaurantResponse(restaurant),
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resp, err := h.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}
