package appointments

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

// Meetings happen in the firm's local time. Weekday and past-slot checks
// all run against this zone.
var bogota = func() *time.Location {
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		return time.FixedZone("COT", -5*60*60)
	}
	return loc
}()

// nowFn is swapped in tests to pin the clock.
var nowFn = func() time.Time { return time.Now().In(bogota) }

// Staff book morning slots; portal clients book afternoon progress
// meetings. Both grids are 45-minute steps.
var (
	staffSlots  = []string{"08:00", "08:45", "09:30", "10:15", "11:00", "11:45", "12:30", "13:15"}
	clientSlots = []string{"14:00", "14:45", "15:30", "16:15", "17:00", "17:45"}
)

type Handler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewHandler(db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{db: db, log: log}
}

// resolveCase loads the client; a portal user only reaches their own case.
func (h *Handler) resolveCase(c *fiber.Ctx, clientID string) (*models.Client, error) {
	var client models.Client
	if err := h.db.First(&client, "id = ?", clientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	if auth.MustRole(c) == models.RoleCliente {
		if client.LoginUserID == nil || client.LoginUserID.String() != auth.MustUserID(c) {
			return nil, fiber.ErrForbidden
		}
	}
	return &client, nil
}

/* ================================ Slots ================================= */

// Slots lists the bookable times for a client's assigned lawyer on one
// date. Past dates, Friday through Sunday, and cases without a lawyer all
// yield an empty list rather than an error.
func (h *Handler) Slots(c *fiber.Ctx) error {
	client, err := h.resolveCase(c, c.Params("id"))
	if err != nil {
		return err
	}

	empty := func() error { return c.JSON(fiber.Map{"items": []fiber.Map{}}) }

	day, err := time.ParseInLocation("2006-01-02", c.Query("date"), bogota)
	if err != nil {
		return empty()
	}

	now := nowFn()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, bogota)
	if day.Before(today) {
		return empty()
	}
	// Meetings run Monday through Thursday only.
	if wd := day.Weekday(); wd == time.Friday || wd == time.Saturday || wd == time.Sunday {
		return empty()
	}
	if client.AbogadoID == nil {
		return empty()
	}

	grid := staffSlots
	if auth.MustRole(c) == models.RoleCliente {
		grid = clientSlots
	}

	var booked []models.Interaction
	if err := h.db.Where("user_id = ? AND tipo = ? AND fecha_hora_cita >= ? AND fecha_hora_cita < ?",
		client.AbogadoID, models.InteractionReunion, day, day.Add(24*time.Hour)).
		Find(&booked).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	occupied := make(map[string]struct{}, len(booked))
	for _, appt := range booked {
		if appt.FechaHoraCita != nil {
			occupied[appt.FechaHoraCita.In(bogota).Format("15:04")] = struct{}{}
		}
	}

	nowHHMM := now.Format("15:04")
	items := make([]fiber.Map, 0, len(grid))
	for _, slot := range grid {
		if day.Equal(today) && slot <= nowHHMM {
			continue
		}
		if _, taken := occupied[slot]; taken {
			continue
		}
		items = append(items, fiber.Map{"time": slot, "label": slot})
	}
	return c.JSON(fiber.Map{"items": items})
}

/* ================================= Book ================================= */

type bookRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Book schedules a meeting with the client's assigned lawyer. The slot is
// re-checked against the lawyer's calendar at write time; a taken slot is
// a 409, not a silent overwrite.
func (h *Handler) Book(c *fiber.Ctx) error {
	client, err := h.resolveCase(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in bookRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if in.Date == "" || in.Time == "" {
		return fiber.NewError(fiber.StatusBadRequest, "datos incompletos")
	}
	when, err := time.ParseInLocation("2006-01-02 15:04", in.Date+" "+in.Time, bogota)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "formato de fecha inválido")
	}
	if client.AbogadoID == nil {
		return fiber.NewError(fiber.StatusConflict, "no hay abogado asignado para agendar")
	}

	var taken int64
	if err := h.db.Model(&models.Interaction{}).
		Where("user_id = ? AND fecha_hora_cita = ? AND tipo = ?",
			client.AbogadoID, when, models.InteractionReunion).
		Count(&taken).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if taken > 0 {
		return fiber.NewError(fiber.StatusConflict, "esa hora ya fue ocupada, por favor elige otra")
	}

	appt := models.Interaction{
		ClientID:      client.ID,
		UserID:        *client.AbogadoID,
		FechaHoraCita: &when,
		Tipo:          models.InteractionReunion,
	}
	if err := h.db.Create(&appt).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.log.Info("appointment booked",
		zap.String("client_id", client.ID.String()),
		zap.String("lawyer_id", client.AbogadoID.String()),
		zap.Time("at", when))
	return c.Status(fiber.StatusCreated).JSON(appt)
}

/* ================================ Cancel ================================ */

// Cancel removes an appointment. Admins cancel anything, a lawyer only
// meetings on their own calendar, a portal client only their own case's.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var appt models.Interaction
	if err := h.db.First(&appt, "id = ?", c.Params("appointmentID")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	userID := auth.MustUserID(c)
	allowed := false
	switch auth.MustRole(c) {
	case models.RoleAdmin:
		allowed = true
	case models.RoleAbogado:
		allowed = appt.UserID.String() == userID
	case models.RoleCliente:
		var client models.Client
		if err := h.db.First(&client, "id = ?", appt.ClientID).Error; err == nil {
			allowed = client.LoginUserID != nil && client.LoginUserID.String() == userID
		}
	}
	if !allowed {
		return fiber.ErrForbidden
	}

	if err := h.db.Delete(&appt).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* ================================= List ================================= */

// List returns a client's scheduled meetings, soonest first.
func (h *Handler) List(c *fiber.Ctx) error {
	client, err := h.resolveCase(c, c.Params("id"))
	if err != nil {
		return err
	}

	var rows []models.Interaction
	if err := h.db.Where("client_id = ?", client.ID).
		Order("fecha_hora_cita ASC").
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []models.Interaction{}
	}
	return c.JSON(fiber.Map{"items": rows})
}
