package documents

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/internal/storage"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

type Handler struct {
	db    *gorm.DB
	log   *zap.Logger
	store *storage.Local
}

func NewHandler(db *gorm.DB, log *zap.Logger, store *storage.Local) *Handler {
	return &Handler{db: db, log: log, store: store}
}

func (h *Handler) loadClient(id string) (*models.Client, error) {
	var client models.Client
	if err := h.db.First(&client, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &client, nil
}

/* ================================ Upload ================================ */

// Upload stores a case document (multipart field "file"). Lawyers and
// admins choose both visibility flags on upload; analyst-side uploads are
// always visible to the analyst side and hidden from the portal.
func (h *Handler) Upload(c *fiber.Ctx) error {
	client, err := h.loadClient(c.Params("id"))
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "no se envió ningún archivo")
	}

	stored, err := h.store.SaveDocument(client.ID.String(), fh)
	if err != nil {
		h.log.Error("document save failed", zap.Error(err))
		return fiber.ErrInternalServerError
	}

	role := auth.MustRole(c)
	doc := models.Document{
		ClientID:     client.ID,
		Filename:     stored,
		OriginalName: fh.Filename,
	}
	doc.UploadedByID, _ = uuid.Parse(auth.MustUserID(c))

	if role == models.RoleAbogado || role == models.RoleAdmin {
		doc.VisibleParaAnalista = c.FormValue("visible_para_analista") == "true"
		doc.VisibleParaCliente = c.FormValue("visible_para_cliente") == "true"
	} else {
		doc.VisibleParaAnalista = true
	}

	if err := h.db.Create(&doc).Error; err != nil {
		if rmErr := h.store.Remove(client.ID.String(), stored); rmErr != nil {
			h.log.Warn("orphan upload cleanup failed",
				zap.String("client_id", client.ID.String()),
				zap.String("filename", stored),
				zap.Error(rmErr))
		}
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

/* ================================= List ================================= */

// List returns the client's documents the caller is allowed to see.
// Lawyers and admins see everything; the analyst side sees only rows
// flagged visible_para_analista; portal clients only visible_para_cliente.
func (h *Handler) List(c *fiber.Ctx) error {
	client, err := h.loadClient(c.Params("id"))
	if err != nil {
		return err
	}

	q := h.db.Where("client_id = ?", client.ID)
	switch auth.MustRole(c) {
	case models.RoleAbogado, models.RoleAdmin:
	case models.RoleCliente:
		q = q.Where("visible_para_cliente = ?", true)
	default:
		q = q.Where("visible_para_analista = ?", true)
	}

	var docs []models.Document
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return c.JSON(fiber.Map{"items": docs})
}

/* =============================== Download =============================== */

func (h *Handler) canView(role models.Role, doc *models.Document) bool {
	switch role {
	case models.RoleAbogado, models.RoleAdmin:
		return true
	case models.RoleCliente:
		return doc.VisibleParaCliente
	default:
		return doc.VisibleParaAnalista
	}
}

// Download streams a document, enforcing the same visibility rules as List.
func (h *Handler) Download(c *fiber.Ctx) error {
	var doc models.Document
	if err := h.db.First(&doc, "id = ?", c.Params("documentID")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	if !h.canView(auth.MustRole(c), &doc) {
		return fiber.ErrForbidden
	}

	name := doc.OriginalName
	if name == "" {
		name = doc.Filename
	}
	return c.Download(h.store.DocumentPath(doc.ClientID.String(), doc.Filename), name)
}

/* ============================== Visibility ============================== */

type visibilityRequest struct {
	VisibleParaAnalista *bool `json:"visible_para_analista"`
	VisibleParaCliente  *bool `json:"visible_para_cliente"`
}

// ToggleVisibility updates one or both visibility flags on a document.
func (h *Handler) ToggleVisibility(c *fiber.Ctx) error {
	var doc models.Document
	if err := h.db.First(&doc, "id = ?", c.Params("documentID")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	var in visibilityRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	updates := map[string]any{}
	if in.VisibleParaAnalista != nil {
		updates["visible_para_analista"] = *in.VisibleParaAnalista
	}
	if in.VisibleParaCliente != nil {
		updates["visible_para_cliente"] = *in.VisibleParaCliente
	}
	if len(updates) == 0 {
		return c.JSON(doc)
	}

	if err := h.db.Model(&doc).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(doc)
}
