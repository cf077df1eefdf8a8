package clients

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/validation"
)

type addObligationRequest struct {
	Entidad     string `json:"entidad" validate:"required,max=100"`
	Estado      string `json:"estado" validate:"required,max=50"`
	Valor       string `json:"valor" validate:"required"`
	EstadoLegal string `json:"estado_legal" validate:"max=50"`
}

// AddObligation registers an external debt for the client. All three core
// fields are mandatory; a non-numeric value is rejected here (unlike the
// lenient installment parsing, an obligation without a real value is noise).
func (h *Handler) AddObligation(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in addObligationRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	valor, err := decimal.NewFromString(sanitize.Line(in.Valor))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "valor inválido")
	}

	estadoLegal := models.LegalSinIniciar
	if el := sanitize.Line(in.EstadoLegal); el != "" {
		estadoLegal = models.LegalStatus(el)
	}

	ob := models.FinancialObligation{
		ClientID:    client.ID,
		Entidad:     sanitize.Line(in.Entidad),
		Estado:      sanitize.Line(in.Estado),
		Valor:       valor,
		EstadoLegal: estadoLegal,
	}
	if err := h.db.Create(&ob).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(ob)
}

type legalStatusRequest struct {
	EstadoLegal string `json:"estado_legal" validate:"required,max=50"`
}

// UpdateLegalStatus moves one obligation's legal-process sub-status.
func (h *Handler) UpdateLegalStatus(c *fiber.Ctx) error {
	var ob models.FinancialObligation
	if err := h.db.First(&ob, "id = ?", c.Params("obligationID")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	// Ownership is enforced through the parent client.
	if _, err := h.requireOwnership(c, ob.ClientID.String()); err != nil {
		return err
	}

	var in legalStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if err := h.db.Model(&ob).
		Update("estado_legal", models.LegalStatus(sanitize.Line(in.EstadoLegal))).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(ob)
}
