package admin

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/validation"
)

type Handler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewHandler(db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{db: db, log: log}
}

/* ============================ User management =========================== */

type createUserRequest struct {
	NombreCompleto string `json:"nombre_completo" validate:"required,max=100"`
	Telefono       string `json:"telefono" validate:"max=20"`
	Email          string `json:"email" validate:"required,email,max=120"`
	Rol            string `json:"rol" validate:"required"`
	Password       string `json:"password" validate:"required,min=8,max=72"`
}

var staffRoles = map[models.Role]struct{}{
	models.RoleAdmin: {}, models.RoleAnalista: {}, models.RoleAbogado: {},
	models.RoleAliado: {}, models.RoleRadicador: {},
}

// CreateUser registers a staff account. Portal accounts are never created
// here; they only exist through GenerateClientAccess.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var in createUserRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	rol := models.Role(sanitize.Line(in.Rol))
	if _, ok := staffRoles[rol]; !ok {
		return fiber.NewError(fiber.StatusBadRequest, "rol desconocido: "+in.Rol)
	}

	email := strings.ToLower(sanitize.Line(in.Email))
	var count int64
	if err := h.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if count > 0 {
		return fiber.NewError(fiber.StatusConflict, "ya existe un usuario con ese correo")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	user := models.User{
		NombreCompleto: sanitize.Line(in.NombreCompleto),
		Telefono:       sanitize.Line(in.Telefono),
		Email:          email,
		Rol:            rol,
		PasswordHash:   string(hash),
		IsActive:       true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.log.Info("user created", zap.String("email", email), zap.String("rol", string(rol)))
	return c.Status(fiber.StatusCreated).JSON(user)
}

// ListUsers pages through accounts, optionally filtered by role.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	size, _ := strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 20
	}

	q := h.db.Model(&models.User{})
	if rol := strings.TrimSpace(c.Query("rol")); rol != "" {
		q = q.Where("rol = ?", rol)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var users []models.User
	if err := q.Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&users).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if users == nil {
		users = []models.User{}
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": users,
	})
}

// DeleteUser removes an account. Self-deletion is refused, and accounts
// still referenced by client assignments stay put with a 409.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	targetID := c.Params("userID")
	if targetID == auth.MustUserID(c) {
		return fiber.NewError(fiber.StatusConflict, "no puedes eliminar tu propia cuenta")
	}

	var user models.User
	if err := h.db.First(&user, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	var refs int64
	if err := h.db.Model(&models.Client{}).
		Where("analista_id = ? OR abogado_id = ? OR radicador_id = ? OR login_user_id = ?",
			user.ID, user.ID, user.ID, user.ID).
		Count(&refs).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if refs > 0 {
		return fiber.NewError(fiber.StatusConflict,
			"el usuario tiene clientes asignados y no puede eliminarse")
	}

	if err := h.db.Delete(&user).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	h.log.Info("user deleted", zap.String("email", user.Email))
	return c.JSON(fiber.Map{"ok": true})
}

/* ============================= Portal access ============================ */

// GenerateClientAccess creates (or reactivates) the portal account linked
// to a client and returns a fresh temporary password. The password is only
// shown in this response; the hash is all that persists.
func (h *Handler) GenerateClientAccess(c *fiber.Ctx) error {
	var client models.Client
	if err := h.db.First(&client, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if strings.TrimSpace(client.Email) == "" {
		return fiber.NewError(fiber.StatusBadRequest,
			"el cliente no tiene correo registrado")
	}

	tempPassword := uuid.NewString()[:12]
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	email := strings.ToLower(sanitize.Line(client.Email))

	tx := h.db.Begin()

	var user models.User
	if client.LoginUserID != nil {
		if err := tx.First(&user, "id = ?", client.LoginUserID).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
		if err := tx.Model(&user).Updates(map[string]any{
			"password_hash": string(hash),
			"is_active":     true,
		}).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	} else {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
		if count > 0 {
			tx.Rollback()
			return fiber.NewError(fiber.StatusConflict,
				"ya existe una cuenta con el correo del cliente")
		}

		user = models.User{
			NombreCompleto: client.Nombre,
			Telefono:       client.Telefono,
			Email:          email,
			Rol:            models.RoleCliente,
			PasswordHash:   string(hash),
			IsActive:       true,
		}
		if err := tx.Create(&user).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
		if err := tx.Model(&client).Update("login_user_id", user.ID).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.log.Info("portal access generated", zap.String("client_id", client.ID.String()))
	return c.JSON(fiber.Map{
		"email":         user.Email,
		"temp_password": tempPassword,
	})
}

// RevokeClientAccess disables the portal account without deleting it, so
// the chat history keeps a valid sender.
func (h *Handler) RevokeClientAccess(c *fiber.Ctx) error {
	var client models.Client
	if err := h.db.First(&client, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if client.LoginUserID == nil {
		return fiber.NewError(fiber.StatusConflict, "el cliente no tiene acceso al portal")
	}

	if err := h.db.Model(&models.User{}).
		Where("id = ?", client.LoginUserID).
		Update("is_active", false).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* ============================ Client deletion =========================== */

// DeleteClient removes a client and every dependent row in one
// transaction. Child tables are cleared explicitly, leaf first, rather
// than relying on database-level cascades.
func (h *Handler) DeleteClient(c *fiber.Ctx) error {
	var client models.Client
	if err := h.db.First(&client, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	tx := h.db.Begin()

	for _, step := range []func() error{
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.CaseMessage{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.Interaction{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.ClientNote{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.Document{}).Error
		},
		func() error {
			return tx.Where("payment_contract_id IN (?)",
				tx.Model(&models.PaymentContract{}).Select("id").Where("client_id = ?", client.ID),
			).Delete(&models.ContractInstallment{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.PaymentContract{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.PaymentDiagnosis{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.FinancialObligation{}).Error
		},
		func() error {
			return tx.Where("client_id = ?", client.ID).Delete(&models.StatusHistory{}).Error
		},
		func() error { return tx.Delete(&client).Error },
	} {
		if err := step(); err != nil {
			tx.Rollback()
			h.log.Error("client deletion failed", zap.Error(err),
				zap.String("client_id", client.ID.String()))
			return fiber.NewError(fiber.StatusConflict,
				fmt.Sprintf("no se pudo eliminar el cliente %s", client.Nombre))
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.log.Info("client deleted", zap.String("client_id", client.ID.String()))
	return c.JSON(fiber.Map{"ok": true})
}
