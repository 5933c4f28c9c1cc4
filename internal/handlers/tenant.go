package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onepointltd/kbserver/internal/logger"
	"github.com/onepointltd/kbserver/internal/services"
	"github.com/onepointltd/kbserver/internal/tenant"
)

// TenantHandler manages tenant lifecycle: folder plus DB schema, created and
// destroyed together.
type TenantHandler struct {
	log *logger.Logger
	rt  *Runtime
}

func NewTenantHandler(rt *Runtime) *TenantHandler {
	return &TenantHandler{log: rt.Log.With("handler", "TenantHandler"), rt: rt}
}

type createTenantRequest struct {
	Email       string `json:"email"`
	TennantName string `json:"tennant_name"`
}

// Create mints a tenant token, materializes the folder, and provisions the
// schema. A folder collision is reported with the folder-exists code so
// clients can distinguish it from plain validation failures.
func (h *TenantHandler) Create(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	if req.TennantName == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "tennant_name is required")
		return
	}

	token, subject, err := h.rt.Auth.MintToken(req.TennantName, req.Email, nil, false)
	if err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid tenant name", err.Error())
		return
	}
	// a live schema without a folder means a half-deleted or foreign tenant;
	// refuse rather than silently adopting its tables
	if exists, err := h.rt.Repos.Schemas.Exists(c.Request.Context(), subject); err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Tenant lookup failed", err.Error())
		return
	} else if exists {
		InvalidResponse(c, http.StatusConflict, CodeConflict, "Tenant exists", "schema "+subject+" already exists")
		return
	}
	if _, err := h.rt.Tenants.CreateTenantFolder(subject, token); err != nil {
		if errors.Is(err, tenant.ErrTenantExists) {
			InvalidResponse(c, http.StatusBadRequest, CodeFolderExists, "Folder exists", err.Error())
			return
		}
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Tenant creation failed", err.Error())
		return
	}
	if err := h.rt.Repos.ProvisionTenant(c.Request.Context(), subject); err != nil {
		// roll the folder back so folder and schema existence stay in lockstep
		if delErr := h.rt.Tenants.DeleteTenantFolderByFolder(subject); delErr != nil {
			h.log.Error("Tenant folder rollback failed", "folder", subject, "error", delErr)
		}
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Tenant provisioning failed", err.Error())
		return
	}

	h.log.Info("Tenant created", "folder", subject)
	RespondOK(c, gin.H{"email": req.Email, "token": token, "folder_name": subject})
}

type deleteTenantRequest struct {
	TennantFolder string `json:"tennant_folder"`
}

func (h *TenantHandler) Delete(c *gin.Context) {
	var req deleteTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", err.Error())
		return
	}
	folder := services.Slugify(req.TennantFolder)
	if folder == "" {
		InvalidResponse(c, http.StatusBadRequest, CodeInvalidInput, "Invalid input", "tennant_folder is required")
		return
	}
	if err := h.rt.Tenants.DeleteTenantFolderByFolder(folder); err != nil {
		if errors.Is(err, tenant.ErrNoTenant) {
			InvalidResponse(c, http.StatusNotFound, CodeNotFound, "Tenant not found", err.Error())
			return
		}
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Tenant deletion failed", err.Error())
		return
	}
	if err := h.rt.Repos.Schemas.Drop(c.Request.Context(), folder); err != nil {
		InvalidResponse(c, http.StatusInternalServerError, CodeServerError, "Schema deletion failed", err.Error())
		return
	}
	h.log.Info("Tenant deleted", "folder", folder)
	RespondOK(c, gin.H{"message": "tenant " + folder + " deleted"})
}
