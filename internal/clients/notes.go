package clients

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

type addNoteRequest struct {
	Content string `json:"content"`
}

// AddNote appends an internal staff note to the client's case file.
func (h *Handler) AddNote(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in addNoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return fiber.NewError(fiber.StatusBadRequest, "la nota no puede estar vacía")
	}

	authorID, _ := uuid.Parse(auth.MustUserID(c))
	note := models.ClientNote{
		ClientID:  client.ID,
		AuthorID:  authorID,
		Content:   content,
		Timestamp: time.Now(),
	}
	if err := h.db.Create(&note).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(note)
}
