package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID             uuid.UUID   `json:"id"`
	Email          string      `json:"email"`
	Rol            models.Role `json:"rol"`
	NombreCompleto string      `json:"nombre_completo"`
	Telefono       string      `json:"telefono"`
	CreatedAt      time.Time   `json:"created_at"`
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* ================================ Login ================================= */

// Login authenticates by email and password and issues a JWT.
// Accounts disabled through portal-access revocation cannot log in.
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize email
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.Where("email = ?", in.Email).First(&u).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if !u.IsActive {
		return fiber.ErrUnauthorized
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, _ := IssueToken(u.ID.String(), u.Rol)
	return c.JSON(AuthResponse{Token: token, Role: string(u.Rol)})
}

/* ================================= Me =================================== */

// Me returns the profile of the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID := MustUserID(c)

	var u models.User
	if err := h.db.First(&u, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	resp := UserProfileResponse{
		ID:             u.ID,
		Email:          u.Email,
		Rol:            u.Rol,
		NombreCompleto: u.NombreCompleto,
		Telefono:       u.Telefono,
		CreatedAt:      u.CreatedAt,
	}
	return c.JSON(resp)
}
