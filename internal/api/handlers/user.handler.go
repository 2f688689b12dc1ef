package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/warden-core/internal/models"
	"github.com/platformbuilds/warden-core/internal/services"
	"github.com/platformbuilds/warden-core/pkg/logger"
)

// UserHandler manages principals inside the caller's tenant.
type UserHandler struct {
	users  *services.UserService
	logger logger.Logger
}

func NewUserHandler(users *services.UserService, log logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: log}
}

type userCreateRequest struct {
	Email      string                 `json:"email"`
	Username   *string                `json:"username,omitempty"`
	ExternalID *string                `json:"externalId,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

type userUpdateRequest struct {
	Email      *string                `json:"email,omitempty"`
	Username   *string                `json:"username,omitempty"`
	Status     *string                `json:"status,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

func (h *UserHandler) Create(c *gin.Context) {
	var req userCreateRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Create(c.Request.Context(), &models.User{
		OrgID:      tenantFrom(c),
		Email:      req.Email,
		Username:   req.Username,
		ExternalID: req.ExternalID,
		Attributes: req.Attributes,
	}, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": user})
}

func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), tenantFrom(c), c.Param("userId"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": user})
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), tenantFrom(c), listOptions(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": users})
}

func (h *UserHandler) Update(c *gin.Context) {
	var req userUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Update(c.Request.Context(), tenantFrom(c), c.Param("userId"), func(u *models.User) error {
		if req.Email != nil {
			u.Email = *req.Email
		}
		if req.Username != nil {
			u.Username = req.Username
		}
		if req.Status != nil {
			status, err := models.ParseUserStatus(*req.Status)
			if err != nil {
				return models.Wrap(models.ErrValidationFailed, "invalid status", err)
			}
			u.Status = status
		}
		if req.Attributes != nil {
			u.Attributes = req.Attributes
		}
		return nil
	}, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": user})
}

// Deactivate flips the user inactive; their next decision check denies.
func (h *UserHandler) Deactivate(c *gin.Context) {
	_, err := h.users.Update(c.Request.Context(), tenantFrom(c), c.Param("userId"), func(u *models.User) error {
		u.Status = models.UserInactive
		return nil
	}, metaFrom(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), tenantFrom(c), c.Param("userId"), metaFrom(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
