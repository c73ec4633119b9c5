package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"linemon-backend/internal/model"
	"linemon-backend/internal/store"
)

type equipmentRequest struct {
	EquipmentID string `json:"equipment_id" binding:"required"`
}

// ListEquipment returns every registered unit.
func (h *Handler) ListEquipment(c *gin.Context) {
	equipment, err := h.store.ListEquipment(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if equipment == nil {
		equipment = []model.Equipment{}
	}
	c.JSON(http.StatusOK, equipment)
}

// CreateEquipment registers a unit.
func (h *Handler) CreateEquipment(c *gin.Context) {
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	e, err := h.store.CreateEquipment(c.Request.Context(), req.EquipmentID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// UpdateEquipment renames the unit with row id :id.
func (h *Handler) UpdateEquipment(c *gin.Context) {
	id, ok := rowID(c)
	if !ok {
		return
	}
	var req equipmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	e, err := h.store.UpdateEquipment(c.Request.Context(), id, req.EquipmentID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// DeleteEquipment removes the unit with row id :id.
func (h *Handler) DeleteEquipment(c *gin.Context) {
	id, ok := rowID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteEquipment(c.Request.Context(), id); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func rowID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid equipment row id"})
		return 0, false
	}
	return id, true
}

func writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidEquipmentID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrEquipmentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "equipment not found"})
	case errors.Is(err, store.ErrEquipmentExists):
		c.JSON(http.StatusConflict, gin.H{"error": "equipment already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
