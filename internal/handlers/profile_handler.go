package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"supplier-import-service/internal/middleware"
	"supplier-import-service/internal/models"
	"supplier-import-service/internal/repository"
)

// ProfileHandler exposes mapping profile CRUD. A profile remembers the
// column mapping and filter settings of a supplier's file format so the
// next upload starts pre-mapped.
type ProfileHandler struct {
	repo   repository.ProfileRepositoryInterface
	logger *logrus.Logger
}

func NewProfileHandler(repo repository.ProfileRepositoryInterface, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{repo: repo, logger: logger}
}

// ProfileRequest is the create/update payload for a mapping profile.
type ProfileRequest struct {
	SupplierID  uuid.UUID           `json:"supplierId" binding:"required"`
	ProfileName string              `json:"profileName"`
	SourceType  models.SourceType   `json:"sourceType"`
	Mapping     map[string]int      `json:"mapping"`
	Filter      models.FilterConfig `json:"filter"`
	IsDefault   bool                `json:"isDefault"`
}

// ListProfiles returns a supplier's mapping profiles
// @Summary List mapping profiles
// @Tags profiles
// @Router /api/v1/catalog/profiles [get]
func (h *ProfileHandler) ListProfiles(c *gin.Context) {
	supplierID, err := uuid.Parse(c.Query("supplierId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SUPPLIER_ID", "supplierId must be a valid UUID")
		return
	}

	profiles, err := h.repo.ListBySupplier(c.Request.Context(), middleware.GetTenantID(c), supplierID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list mapping profiles")
		respondError(c, http.StatusInternalServerError, "LIST_FAILED", "Failed to list mapping profiles")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: profiles})
}

// GetDefaultProfile returns the supplier's default mapping profile
// @Summary Get the default mapping profile
// @Tags profiles
// @Router /api/v1/catalog/profiles/default [get]
func (h *ProfileHandler) GetDefaultProfile(c *gin.Context) {
	supplierID, err := uuid.Parse(c.Query("supplierId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SUPPLIER_ID", "supplierId must be a valid UUID")
		return
	}

	profile, err := h.repo.GetDefault(c.Request.Context(), middleware.GetTenantID(c), supplierID)
	if err != nil || profile == nil {
		respondError(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "No default mapping profile for this supplier")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: profile})
}

// GetProfile returns one mapping profile by id
// @Summary Get a mapping profile
// @Tags profiles
// @Router /api/v1/catalog/profiles/{id} [get]
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	profile, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil || profile == nil || profile.TenantID != middleware.GetTenantID(c) {
		respondError(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "Mapping profile not found")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: profile})
}

// CreateProfile saves a new mapping profile
// @Summary Create a mapping profile
// @Tags profiles
// @Router /api/v1/catalog/profiles [post]
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	req, ok := h.bindProfile(c)
	if !ok {
		return
	}

	profile := &models.MappingProfile{
		TenantID:    middleware.GetTenantID(c),
		SupplierID:  req.SupplierID,
		ProfileName: req.ProfileName,
		SourceType:  req.SourceType,
		IsDefault:   req.IsDefault,
	}
	if profile.ProfileName == "" {
		profile.ProfileName = "Default"
	}
	profile.SetColumnMapping(mappingFromWire(req.Mapping))
	profile.SetFilterConfig(req.Filter)

	var err error
	if profile.IsDefault {
		err = h.repo.UpsertDefault(c.Request.Context(), profile)
	} else {
		err = h.repo.Save(c.Request.Context(), profile)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to save mapping profile")
		respondError(c, http.StatusInternalServerError, "SAVE_FAILED", "Failed to save mapping profile")
		return
	}

	c.JSON(http.StatusCreated, models.SuccessResponse{Success: true, Data: profile})
}

// UpdateProfile updates an existing mapping profile
// @Summary Update a mapping profile
// @Tags profiles
// @Router /api/v1/catalog/profiles/{id} [put]
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	profile, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil || profile == nil || profile.TenantID != middleware.GetTenantID(c) {
		respondError(c, http.StatusNotFound, "PROFILE_NOT_FOUND", "Mapping profile not found")
		return
	}

	req, ok := h.bindProfile(c)
	if !ok {
		return
	}

	if req.ProfileName != "" {
		profile.ProfileName = req.ProfileName
	}
	if req.SourceType != "" {
		profile.SourceType = req.SourceType
	}
	profile.SetColumnMapping(mappingFromWire(req.Mapping))
	profile.SetFilterConfig(req.Filter)
	profile.IsDefault = req.IsDefault

	if profile.IsDefault {
		err = h.repo.UpsertDefault(c.Request.Context(), profile)
	} else {
		err = h.repo.Save(c.Request.Context(), profile)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to update mapping profile")
		respondError(c, http.StatusInternalServerError, "SAVE_FAILED", "Failed to update mapping profile")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: profile})
}

// DeleteProfile removes a mapping profile
// @Summary Delete a mapping profile
// @Tags profiles
// @Router /api/v1/catalog/profiles/{id} [delete]
func (h *ProfileHandler) DeleteProfile(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.repo.Delete(c.Request.Context(), middleware.GetTenantID(c), id); err != nil {
		h.logger.WithError(err).Error("Failed to delete mapping profile")
		respondError(c, http.StatusInternalServerError, "DELETE_FAILED", "Failed to delete mapping profile")
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

func (h *ProfileHandler) bindProfile(c *gin.Context) (*ProfileRequest, bool) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		details := models.JSONB{"binding": err.Error()}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Success: false,
			Error: models.Error{
				Code:    "INVALID_REQUEST",
				Message: "Invalid profile payload",
				Details: &details,
			},
		})
		return nil, false
	}
	return &req, true
}

func mappingFromWire(wire map[string]int) models.ColumnMapping {
	mapping := models.NewColumnMapping()
	for field, col := range wire {
		mapping.Set(models.CanonicalField(field), col)
	}
	return mapping
}
