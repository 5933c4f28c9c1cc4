package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/repos"
	"github.com/onepointltd/kbserver/internal/services"
)

// AdminHandler serves admin login plus admin-user CRUD.
type AdminHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewAdminHandler(rt *Runtime) *AdminHandler {
	return &AdminHandler{log: rt.Log.With("handler", "AdminHandler"), rt: rt}
}

// AdminToken exchanges admin credentials for a JWT. Unauthenticated by
// design: this is the login endpoint.
func (h *AdminHandler) AdminToken(c *gin.Context) {
	name := c.Query("name")
	email := c.Query("email")
	password := c.Query("password")
	if name == "" || password == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "name and password are required")
		return
	}
	token, err := h.rt.Auth.AdminLogin(c.Request.Context(), name, email, password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			InvalidResponse(c, http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", "invalid credentials")
			return
		}
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Login failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"token": token})
}

// Create registers a new admin user and returns a token for it.
func (h *AdminHandler) Create(c *gin.Context) {
	name := c.Query("name")
	email := c.Query("email")
	password := c.Query("password")
	if name == "" || email == "" || password == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "name, email, and password are required")
		return
	}
	user, err := h.rt.Auth.CreateAdminUser(c.Request.Context(), name, email, password)
	if err != nil {
		if errors.Is(err, repos.ErrAdminExists) {
			InvalidResponse(c, http.StatusConflict, CodeConflict, "Admin exists", "an admin with that email already exists")
			return
		}
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Admin creation failed", err.Error())
		return
	}
	h.rt.AdminFile.AddAdministrator(email)
	if err := h.rt.AdminFile.Save(); err != nil {
		h.log.Error("Administrators file update failed", "error", err)
	}
	token, _, err := h.rt.Auth.MintToken(user.Name, user.Email, nil, false)
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Token mint failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"token": token, "email": user.Email, "name": user.Name})
}

func (h *AdminHandler) List(c *gin.Context) {
	users, err := h.rt.Auth.ListAdminUsers(c.Request.Context())
	if err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Admin listing failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"admins": users})
}

func (h *AdminHandler) Delete(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "email is required")
		return
	}
	if err := h.rt.Auth.DeleteAdminUser(c.Request.Context(), email); err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Admin deletion failed", err.Error())
		return
	}
	RespondOK(c, gin.H{"message": "admin deleted"})
}
