package payments

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/internal/storage"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
)

// AllyHandler serves the ally self-service area: uploading payment proof
// files and reviewing previous uploads. Allies only ever see their own rows.
type AllyHandler struct {
	db    *gorm.DB
	store *storage.Local
}

func NewAllyHandler(db *gorm.DB, store *storage.Local) *AllyHandler {
	return &AllyHandler{db: db, store: store}
}

// UploadProof stores one payment proof file (multipart field "file") with
// an optional observation text. Only PDF files are accepted.
func (h *AllyHandler) UploadProof(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "no se envió ningún archivo")
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".pdf") {
		return fiber.NewError(fiber.StatusBadRequest, "solo se permiten archivos PDF")
	}

	allyID := auth.MustUserID(c)
	name, err := h.store.SaveAllyProof(allyID, fh)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	uid, _ := uuid.Parse(allyID)
	payment := models.AllyPayment{
		AllyID:      uid,
		Filename:    name,
		Observation: sanitize.Line(c.FormValue("observation")),
	}
	if err := h.db.Create(&payment).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

// ListProofs returns the calling ally's own uploads, newest first.
func (h *AllyHandler) ListProofs(c *fiber.Ctx) error {
	var rows []models.AllyPayment
	if err := h.db.Where("ally_id = ?", auth.MustUserID(c)).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []models.AllyPayment{}
	}
	return c.JSON(fiber.Map{"items": rows})
}

// DownloadProof streams one of the caller's own proof files. Admins may
// fetch any ally's file.
func (h *AllyHandler) DownloadProof(c *fiber.Ctx) error {
	var payment models.AllyPayment
	if err := h.db.First(&payment, "id = ?", c.Params("paymentID")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	if auth.MustRole(c) != models.RoleAdmin && payment.AllyID.String() != auth.MustUserID(c) {
		return fiber.ErrForbidden
	}
	return c.Download(h.store.AllyProofPath(payment.AllyID.String(), payment.Filename), payment.Filename)
}
