package financial

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/storage"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
)

type Handler struct {
	db    *gorm.DB
	log   *zap.Logger
	store *storage.Local
}

func NewHandler(db *gorm.DB, log *zap.Logger, store *storage.Local) *Handler {
	return &Handler{db: db, log: log, store: store}
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

// parseRange reads optional ?start=YYYY-MM-DD&end=YYYY-MM-DD bounds.
// Malformed dates are treated as absent.
func parseRange(c *fiber.Ctx) (start, end time.Time) {
	if t, err := time.Parse("2006-01-02", c.Query("start")); err == nil {
		start = t
	}
	if t, err := time.Parse("2006-01-02", c.Query("end")); err == nil {
		end = t
	}
	return
}

/* ============================== Dashboard =============================== */

// Dashboard returns the balance summary plus the client funnel for the
// requested date range.
func (h *Handler) Dashboard(c *fiber.Ctx) error {
	start, end := parseRange(c)
	summary, err := ComputeBalance(h.db, start, end)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	funnel, err := FunnelStats(h.db)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"balance": summary, "funnel": funnel})
}

/* ============================== Accounting ============================== */

type diagnosisRow struct {
	ClientID     string          `json:"client_id"`
	ClientNombre string          `json:"client_nombre"`
	Valor        decimal.Decimal `json:"valor"`
	FechaPago    *time.Time      `json:"fecha_pago"`
	MetodoPago   string          `json:"metodo_pago"`
	Verificado   bool            `json:"verificado"`
}

// ListDiagnoses pages through diagnosis payments joined with the client
// name, for the accounting screen.
func (h *Handler) ListDiagnoses(c *fiber.Ctx) error {
	page, size := parsePage(c)

	q := h.db.Model(&models.PaymentDiagnosis{}).
		Joins("JOIN clients ON clients.id = payment_diagnoses.client_id")
	if v := c.Query("verificado"); v != "" {
		q = q.Where("payment_diagnoses.verificado = ?", v == "true")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []diagnosisRow
	if err := q.Select("clients.id AS client_id, clients.nombre AS client_nombre, payment_diagnoses.valor, payment_diagnoses.fecha_pago, payment_diagnoses.metodo_pago, payment_diagnoses.verificado").
		Order("payment_diagnoses.fecha_pago DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []diagnosisRow{}
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

type installmentRow struct {
	ClientID         string                   `json:"client_id"`
	ClientNombre     string                   `json:"client_nombre"`
	NumeroCuota      int                      `json:"numero_cuota"`
	Valor            decimal.Decimal          `json:"valor"`
	FechaVencimiento *time.Time               `json:"fecha_vencimiento"`
	Estado           models.InstallmentStatus `json:"estado"`
}

// ListInstallments pages through contract installments across all clients,
// optionally filtered by state.
func (h *Handler) ListInstallments(c *fiber.Ctx) error {
	page, size := parsePage(c)

	q := h.db.Model(&models.ContractInstallment{}).
		Joins("JOIN payment_contracts ON payment_contracts.id = contract_installments.payment_contract_id").
		Joins("JOIN clients ON clients.id = payment_contracts.client_id")
	if estado := strings.TrimSpace(c.Query("estado")); estado != "" {
		if !models.InstallmentStatus(estado).Known() {
			return fiber.NewError(fiber.StatusBadRequest, "estado de cuota desconocido: "+estado)
		}
		q = q.Where("contract_installments.estado = ?", estado)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []installmentRow
	if err := q.Select("clients.id AS client_id, clients.nombre AS client_nombre, contract_installments.numero_cuota, contract_installments.valor, contract_installments.fecha_vencimiento, contract_installments.estado").
		Order("contract_installments.fecha_vencimiento ASC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []installmentRow{}
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

/* =============================== Expenses =============================== */

type expenseInput struct {
	Descripcion string `json:"descripcion"`
	Valor       string `json:"valor"`
	Fecha       string `json:"fecha"`
}

type expensesRequest struct {
	Gastos []expenseInput `json:"gastos"`
}

const maxExpenseBatch = 5

// AddExpenses registers up to five administrative expense rows in one
// request. Rows without a description or with a non-positive value are
// skipped silently, matching the lenient money handling elsewhere. A row
// without its own date gets the active range's end date, or today when no
// range is being viewed.
func (h *Handler) AddExpenses(c *fiber.Ctx) error {
	var in expensesRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if len(in.Gastos) > maxExpenseBatch {
		in.Gastos = in.Gastos[:maxExpenseBatch]
	}

	defaultFecha := time.Now()
	if _, end := parseRange(c); !end.IsZero() {
		defaultFecha = end
	}

	created := 0
	for _, g := range in.Gastos {
		desc := sanitize.Line(g.Descripcion)
		valor, err := decimal.NewFromString(sanitize.Line(g.Valor))
		if desc == "" || err != nil || !valor.IsPositive() {
			continue
		}
		fecha := defaultFecha
		if t, err := time.Parse("2006-01-02", g.Fecha); err == nil {
			fecha = t
		}
		exp := models.AdministrativeExpense{Descripcion: desc, Valor: valor, Fecha: fecha}
		if err := h.db.Create(&exp).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		created++
	}

	h.log.Info("admin expenses recorded", zap.Int("count", created))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": created})
}

// ListExpenses pages through expense rows, newest first.
func (h *Handler) ListExpenses(c *fiber.Ctx) error {
	page, size := parsePage(c)
	start, end := parseRange(c)

	q := h.db.Model(&models.AdministrativeExpense{})
	if !start.IsZero() {
		q = q.Where("fecha >= ?", start)
	}
	if !end.IsZero() {
		q = q.Where("fecha <= ?", end)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []models.AdministrativeExpense
	if err := q.Order("fecha DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []models.AdministrativeExpense{}
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}
