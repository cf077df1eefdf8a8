package clients

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

// LogStatusChange appends an audit row for a lifecycle transition.
// Errors are ignored on purpose (best-effort logging).
func LogStatusChange(db *gorm.DB, clientID, actorID uuid.UUID, oldS, newS models.ClientStatus) {
	_ = db.Create(&models.StatusHistory{
		ClientID:  clientID,
		ActorID:   actorID,
		OldStatus: oldS,
		NewStatus: newS,
	}).Error
}

/* ============================ Send to lawyer ============================ */

// SendToLawyer routes a case to legal processing: the first available
// Abogado-role user is assigned (first-match, no load balancing) and the
// client moves to Pendiente_Analisis. When no lawyer exists the client is
// left untouched and a 409 warning is returned.
func (h *Handler) SendToLawyer(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var lawyer models.User
	err = h.db.Where("rol = ? AND is_active = ?", models.RoleAbogado, true).
		Order("created_at ASC").
		First(&lawyer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusConflict, "no hay abogados disponibles para asignar el caso")
		}
		return fiber.ErrInternalServerError
	}

	now := time.Now()
	oldStatus := client.Estado
	if err := h.db.Model(client).Updates(map[string]any{
		"estado":             models.StatusPendienteAnalisis,
		"abogado_id":         lawyer.ID,
		"last_status_update": &now,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	actorID, _ := uuid.Parse(auth.MustUserID(c))
	LogStatusChange(h.db, client.ID, actorID, oldStatus, models.StatusPendienteAnalisis)

	h.log.Info("case assigned to lawyer",
		zap.String("client_id", client.ID.String()),
		zap.String("lawyer_id", lawyer.ID.String()),
		zap.String("lawyer_email", lawyer.Email))

	return c.JSON(fiber.Map{
		"ok":      true,
		"abogado": fiber.Map{"id": lawyer.ID, "nombre_completo": lawyer.NombreCompleto},
		"estado":  models.StatusPendienteAnalisis,
	})
}

/* ============================ Update status ============================= */

type updateStatusRequest struct {
	Estado string `json:"estado" validate:"required,max=50"`
}

// UpdateStatus overwrites the client status with any value from the closed
// status set. Setting the current value again is a no-op: nothing is
// written and last_status_update keeps its old stamp.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in updateStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	target := models.ClientStatus(in.Estado)
	if !target.Known() {
		return fiber.NewError(fiber.StatusBadRequest, "estado desconocido: "+in.Estado)
	}

	if target == client.Estado {
		return c.JSON(fiber.Map{"ok": true, "changed": false, "estado": client.Estado})
	}

	now := time.Now()
	oldStatus := client.Estado
	if err := h.db.Model(client).Updates(map[string]any{
		"estado":             target,
		"last_status_update": &now,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	actorID, _ := uuid.Parse(auth.MustUserID(c))
	LogStatusChange(h.db, client.ID, actorID, oldStatus, target)

	return c.JSON(fiber.Map{"ok": true, "changed": true, "estado": target})
}

/* ============================ Status history ============================ */

// StatusLog returns the audit trail of lifecycle changes for a client.
func (h *Handler) StatusLog(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var rows []models.StatusHistory
	if err := h.db.Where("client_id = ?", client.ID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []models.StatusHistory{}
	}
	return c.JSON(fiber.Map{"items": rows})
}
