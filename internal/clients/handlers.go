package clients

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreateClientRequest struct {
	Nombre         string `json:"nombre" validate:"required,max=100"`
	Telefono       string `json:"telefono" validate:"required,max=20"`
	TipoID         string `json:"tipo_id" validate:"max=20"`
	NumeroID       string `json:"numero_id" validate:"omitempty,docnum"`
	Email          string `json:"email" validate:"omitempty,email,max=120"`
	Ciudad         string `json:"ciudad" validate:"max=50"`
	MotivoConsulta string `json:"motivo_consulta" validate:"max=2000"`
	ContractNumber string `json:"contract_number" validate:"max=50"`
	// Incomplete marks the intake as partial; Prospect files the record as a
	// prospect instead of a new client.
	Incomplete bool `json:"incomplete"`
	Prospect   bool `json:"prospect"`
}

type EditClientRequest struct {
	Nombre         string `json:"nombre" validate:"required,max=100"`
	Telefono       string `json:"telefono" validate:"required,max=20"`
	TipoID         string `json:"tipo_id" validate:"max=20"`
	NumeroID       string `json:"numero_id" validate:"omitempty,docnum"`
	Email          string `json:"email" validate:"omitempty,email,max=120"`
	Ciudad         string `json:"ciudad" validate:"max=50"`
	ContractNumber string `json:"contract_number" validate:"max=50"`
	// Promote moves a Prospecto to Nuevo; ignored in any other state.
	Promote bool `json:"promote"`
}

type Handler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewHandler(db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{db: db, log: log}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 20
	}
	return
}

/* =============================== Intake ================================= */

// Create registers a new client from an intake form. Duplicate document or
// contract numbers are rejected and no row is written.
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	numeroID := sanitize.Line(in.NumeroID)
	var contractNumber *string
	if cn := sanitize.Line(in.ContractNumber); cn != "" {
		contractNumber = &cn
	}

	// Duplicate checks happen up front so the caller gets a field message
	// instead of a bare constraint violation.
	if numeroID != "" {
		var cnt int64
		if err := h.db.Model(&models.Client{}).Where("numero_id = ?", numeroID).Count(&cnt).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		if cnt > 0 {
			return fiber.NewError(fiber.StatusConflict, "ya existe un cliente con el documento "+numeroID)
		}
	}
	if contractNumber != nil {
		var cnt int64
		if err := h.db.Model(&models.Client{}).Where("contract_number = ?", *contractNumber).Count(&cnt).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		if cnt > 0 {
			return fiber.NewError(fiber.StatusConflict, "ya existe un cliente con el contrato "+*contractNumber)
		}
	}

	estado := models.StatusNuevo
	if in.Prospect {
		estado = models.StatusProspecto
	} else if in.Incomplete {
		estado = models.StatusInformacionIncompleta
	}

	actorID, _ := uuid.Parse(auth.MustUserID(c))
	client := models.Client{
		Nombre:         sanitize.Line(in.Nombre),
		Telefono:       sanitize.Line(in.Telefono),
		TipoID:         sanitize.Line(in.TipoID),
		NumeroID:       numeroID,
		Email:          strings.ToLower(sanitize.Line(in.Email)),
		Ciudad:         sanitize.Line(in.Ciudad),
		MotivoConsulta: strings.TrimSpace(in.MotivoConsulta),
		ContractNumber: contractNumber,
		Estado:         estado,
	}
	if auth.MustRole(c) == models.RoleRadicador {
		client.RadicadorID = &actorID
	} else {
		client.AnalistaID = &actorID
	}

	if err := h.db.Create(&client).Error; err != nil {
		// Unique index race: someone inserted the same number concurrently.
		return fiber.NewError(fiber.StatusConflict, "cliente duplicado")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": client.ID, "estado": client.Estado})
}

/* ================================ List ================================== */

type clientListItem struct {
	ID             uuid.UUID           `json:"id"`
	Nombre         string              `json:"nombre"`
	NumeroID       string              `json:"numero_id"`
	Telefono       string              `json:"telefono"`
	Ciudad         string              `json:"ciudad"`
	Estado         models.ClientStatus `json:"estado"`
	ContractNumber *string             `json:"contract_number"`
	MotivoConsulta string              `json:"motivo_consulta"`
	CreatedAt      time.Time           `json:"created_at"`
}

// lawyer dashboard only surfaces cases already routed to legal processing
var lawyerVisibleStatuses = []models.ClientStatus{
	models.StatusPendienteAnalisis, models.StatusConAnalisis,
	models.StatusConContrato, models.StatusRadicado,
	models.StatusFinalizado, models.StatusFinalizadoProcesoCredito,
}

// List returns the role-scoped client listing: an Abogado sees only cases
// assigned to them (and only in legal-processing states), an Aliado or
// Radicador only their own intakes, Admin and Analista see everything.
func (h *Handler) List(c *fiber.Ctx) error {
	userID := auth.MustUserID(c)
	role := auth.MustRole(c)
	page, size := parsePage(c)

	q := h.db.Model(&models.Client{})
	switch role {
	case models.RoleAbogado:
		q = q.Where("abogado_id = ?", userID).Where("estado IN ?", lawyerVisibleStatuses)
	case models.RoleAliado:
		q = q.Where("analista_id = ?", userID)
	case models.RoleRadicador:
		q = q.Where("radicador_id = ?", userID)
	}

	if nombre := strings.TrimSpace(c.Query("nombre")); nombre != "" {
		like := "%" + strings.ToLower(nombre) + "%"
		q = q.Where("LOWER(nombre) LIKE ? OR LOWER(numero_id) LIKE ?", like, like)
	}
	if estado := strings.TrimSpace(c.Query("estado")); estado != "" {
		if !models.ClientStatus(estado).Known() {
			return fiber.NewError(fiber.StatusBadRequest, "invalid estado filter")
		}
		q = q.Where("estado = ?", estado)
	}
	if fecha := c.Query("fecha"); fecha != "" {
		if day, err := time.Parse("2006-01-02", fecha); err == nil {
			q = q.Where("created_at >= ? AND created_at < ?", day, day.Add(24*time.Hour))
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]clientListItem, 0, size)
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&items).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	for i := range items {
		items[i].MotivoConsulta = sanitize.Summary(items[i].MotivoConsulta, 120)
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": items,
	})
}

/* =============================== Detail ================================= */

// requireOwnership loads the client and enforces the per-role record scope.
func (h *Handler) requireOwnership(c *fiber.Ctx, clientID string) (*models.Client, error) {
	var client models.Client
	if err := h.db.First(&client, "id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}

	userID := auth.MustUserID(c)
	switch auth.MustRole(c) {
	case models.RoleAbogado:
		if client.AbogadoID == nil || client.AbogadoID.String() != userID {
			return nil, fiber.ErrForbidden
		}
	case models.RoleAnalista, models.RoleAliado:
		if client.AnalistaID == nil || client.AnalistaID.String() != userID {
			return nil, fiber.ErrForbidden
		}
	case models.RoleRadicador:
		if client.RadicadorID == nil || client.RadicadorID.String() != userID {
			return nil, fiber.ErrForbidden
		}
	}
	return &client, nil
}

// GetDetail returns the full case file: client, obligations, diagnosis and
// contract with installments.
func (h *Handler) GetDetail(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var obligations []models.FinancialObligation
	if err := h.db.Where("client_id = ?", client.ID).Order("created_at ASC").Find(&obligations).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var diagnosis *models.PaymentDiagnosis
	var d models.PaymentDiagnosis
	if err := h.db.First(&d, "client_id = ?", client.ID).Error; err == nil {
		diagnosis = &d
	}

	var contract *models.PaymentContract
	var pc models.PaymentContract
	err = h.db.Preload("Installments", func(db *gorm.DB) *gorm.DB {
		return db.Order("numero_cuota ASC")
	}).First(&pc, "client_id = ?", client.ID).Error
	if err == nil {
		contract = &pc
	}

	var notes []models.ClientNote
	if err := h.db.Where("client_id = ?", client.ID).Order("timestamp DESC").Find(&notes).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	if obligations == nil {
		obligations = []models.FinancialObligation{}
	}
	if notes == nil {
		notes = []models.ClientNote{}
	}

	return c.JSON(fiber.Map{
		"client":      client,
		"obligations": obligations,
		"diagnosis":   diagnosis,
		"contract":    contract,
		"notes":       notes,
	})
}

/* ================================ Edit ================================== */

// Edit updates the client identity fields. A Promote flag moves a Prospecto
// to Nuevo exactly once; in any other state the flag is ignored.
func (h *Handler) Edit(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in EditClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var contractNumber *string
	if cn := sanitize.Line(in.ContractNumber); cn != "" {
		cur := ""
		if client.ContractNumber != nil {
			cur = *client.ContractNumber
		}
		if cn != cur {
			var cnt int64
			if err := h.db.Model(&models.Client{}).
				Where("contract_number = ? AND id <> ?", cn, client.ID).
				Count(&cnt).Error; err != nil {
				return fiber.ErrInternalServerError
			}
			if cnt > 0 {
				return fiber.NewError(fiber.StatusConflict, "ya existe un cliente con el contrato "+cn)
			}
		}
		contractNumber = &cn
	}

	updates := map[string]any{
		"nombre":          sanitize.Line(in.Nombre),
		"telefono":        sanitize.Line(in.Telefono),
		"tipo_id":         sanitize.Line(in.TipoID),
		"numero_id":       sanitize.Line(in.NumeroID),
		"email":           strings.ToLower(sanitize.Line(in.Email)),
		"ciudad":          sanitize.Line(in.Ciudad),
		"contract_number": contractNumber,
	}

	promoted := false
	if in.Promote && client.Estado == models.StatusProspecto {
		now := time.Now()
		updates["estado"] = models.StatusNuevo
		updates["last_status_update"] = &now
		promoted = true
	}

	if err := h.db.Model(client).Updates(updates).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	if promoted {
		actorID, _ := uuid.Parse(auth.MustUserID(c))
		LogStatusChange(h.db, client.ID, actorID, models.StatusProspecto, models.StatusNuevo)
	}

	return c.JSON(fiber.Map{"ok": true, "promoted": promoted})
}

/* ============================== Analysis ================================ */

type analysisRequest struct {
	ConclusionAnalisis string `json:"conclusion_analisis" validate:"max=5000"`
}

// UpdateAnalysis stores the analyst/lawyer conclusion text for the case.
func (h *Handler) UpdateAnalysis(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in analysisRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if err := h.db.Model(client).
		Update("conclusion_analisis", strings.TrimSpace(in.ConclusionAnalisis)).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}
