package payments

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
)

type diagnosisRequest struct {
	Valor      string `json:"valor"`
	FechaPago  string `json:"fecha_pago"`
	MetodoPago string `json:"metodo_pago"`
	Verificado bool   `json:"verificado"`
}

// SaveDiagnosis upserts the one-time evaluation fee record for a client.
// Amount and date are coerced like installment rows (bad value -> 0, bad
// date -> nil). Only lawyers and admins can mark the payment verified;
// for everyone else the flag is ignored, including an attempt to clear it.
func (h *Handler) SaveDiagnosis(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in diagnosisRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	var diag models.PaymentDiagnosis
	err = h.db.First(&diag, "client_id = ?", client.ID).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return fiber.ErrInternalServerError
	}

	diag.ClientID = client.ID
	diag.Valor = parseValue(in.Valor)
	diag.FechaPago = parseDate(in.FechaPago)
	diag.MetodoPago = sanitize.Line(in.MetodoPago)

	role := auth.MustRole(c)
	if role == models.RoleAdmin || role == models.RoleAbogado {
		diag.Verificado = in.Verificado
	}

	if isNew {
		err = h.db.Create(&diag).Error
	} else {
		err = h.db.Model(&diag).Updates(map[string]any{
			"valor":       diag.Valor,
			"fecha_pago":  diag.FechaPago,
			"metodo_pago": diag.MetodoPago,
			"verificado":  diag.Verificado,
		}).Error
	}
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(diag)
}

// VerifyDiagnosis flips the verification flag on an existing diagnosis
// payment. Verification is what makes the fee count as income.
func (h *Handler) VerifyDiagnosis(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var diag models.PaymentDiagnosis
	if err := h.db.First(&diag, "client_id = ?", client.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "el cliente no tiene pago de diagnóstico registrado")
		}
		return fiber.ErrInternalServerError
	}

	var in struct {
		Verificado bool `json:"verificado"`
	}
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	if err := h.db.Model(&diag).Update("verificado", in.Verificado).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true, "verificado": in.Verificado})
}
