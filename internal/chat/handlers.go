package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

const maxMessageLen = 5000

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// resolveCase loads the client record for a chat operation. Staff roles
// may reach any case; a portal user only the case linked to their login.
func (h *Handler) resolveCase(c *fiber.Ctx, clientID string) (*models.Client, error) {
	var client models.Client
	if err := h.db.First(&client, "id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}

	if auth.MustRole(c) == models.RoleCliente {
		userID := auth.MustUserID(c)
		if client.LoginUserID == nil || client.LoginUserID.String() != userID {
			return nil, fiber.ErrForbidden
		}
	}
	return &client, nil
}

/* ================================= Send ================================= */

type sendRequest struct {
	Content string `json:"content"`
}

// Send posts one chat message on a case.
func (h *Handler) Send(c *fiber.Ctx) error {
	client, err := h.resolveCase(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in sendRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return fiber.NewError(fiber.StatusBadRequest, "el mensaje no puede estar vacío")
	}
	if len(content) > maxMessageLen {
		return fiber.NewError(fiber.StatusBadRequest, "el mensaje es demasiado largo")
	}

	senderID, _ := uuid.Parse(auth.MustUserID(c))
	msg := models.CaseMessage{
		ClientID:  client.ID,
		SenderID:  senderID,
		Content:   content,
		Timestamp: time.Now(),
	}
	if err := h.db.Create(&msg).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

/* ================================ History =============================== */

// History returns the case conversation oldest first. Reading the thread
// marks the counterpart's messages as read: for the portal client every
// staff message, for staff every message sent by the portal client.
func (h *Handler) History(c *fiber.Ctx) error {
	client, err := h.resolveCase(c, c.Params("id"))
	if err != nil {
		return err
	}

	var msgs []models.CaseMessage
	if err := h.db.Where("client_id = ?", client.ID).
		Order("timestamp ASC").
		Find(&msgs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if msgs == nil {
		msgs = []models.CaseMessage{}
	}

	h.markCounterpartRead(c, client)

	return c.JSON(fiber.Map{"items": msgs})
}

// Only the two ends of the conversation clear read markers: the portal
// client, and the lawyer the case is assigned to. Other staff reading
// along must not consume the client's unread state.
func (h *Handler) markCounterpartRead(c *fiber.Ctx, client *models.Client) {
	userID := auth.MustUserID(c)
	q := h.db.Model(&models.CaseMessage{}).
		Where("client_id = ? AND is_read_by_recipient = ?", client.ID, false)

	if auth.MustRole(c) == models.RoleCliente {
		// Everything not sent by the portal user was sent by staff.
		q = q.Where("sender_id <> ?", userID)
	} else {
		if client.AbogadoID == nil || client.AbogadoID.String() != userID {
			return
		}
		if client.LoginUserID == nil {
			return
		}
		q = q.Where("sender_id = ?", client.LoginUserID)
	}
	// Best effort; a failed read marker never breaks history.
	_ = q.Update("is_read_by_recipient", true).Error
}

/* ================================ Portal ================================ */

// Portal returns the client-facing case view: the client record, contract
// progress, portal-visible documents and the conversation.
func (h *Handler) Portal(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)

	var client models.Client
	if err := h.db.First(&client, "login_user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "no hay un caso vinculado a esta cuenta")
		}
		return fiber.ErrInternalServerError
	}

	var contract models.PaymentContract
	hasContract := true
	if err := h.db.Preload("Installments", func(db *gorm.DB) *gorm.DB {
		return db.Order("numero_cuota ASC")
	}).First(&contract, "client_id = ?", client.ID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrInternalServerError
		}
		hasContract = false
	}

	totalPagado := decimal.Zero
	progress := 0.0
	if hasContract {
		for _, inst := range contract.Installments {
			if inst.Estado == models.InstallmentPagada {
				totalPagado = totalPagado.Add(inst.Valor)
			}
		}
		if contract.ValorTotal.IsPositive() {
			ratio, _ := totalPagado.Div(contract.ValorTotal).Float64()
			progress = ratio * 100
			if progress > 100 {
				progress = 100
			}
		}
	}

	var docs []models.Document
	if err := h.db.Where("client_id = ? AND visible_para_cliente = ?", client.ID, true).
		Order("created_at DESC").
		Find(&docs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if docs == nil {
		docs = []models.Document{}
	}

	var msgs []models.CaseMessage
	if err := h.db.Where("client_id = ?", client.ID).
		Order("timestamp ASC").
		Find(&msgs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if msgs == nil {
		msgs = []models.CaseMessage{}
	}

	out := fiber.Map{
		"client":              client,
		"total_pagado":        totalPagado,
		"progress_percentage": progress,
		"documents":           docs,
		"messages":            msgs,
	}
	if hasContract {
		out["contract"] = contract
	}
	return c.JSON(out)
}
