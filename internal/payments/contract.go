package payments

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/sanitize"
)

type Handler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewHandler(db *gorm.DB, log *zap.Logger) *Handler {
	return &Handler{db: db, log: log}
}

// requireOwnership loads the client and enforces the per-role record scope,
// mirroring the case-file access rules.
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

/* ================================ DTOs ================================= */

// InstallmentInput is one submitted installment row. Values and dates are
// parsed leniently: malformed input is coerced (0 / nil), never rejected.
type InstallmentInput struct {
	Numero   int    `json:"numero"`
	Valor    string `json:"valor"`
	Fecha    string `json:"fecha"` // YYYY-MM-DD
	Metodo   string `json:"metodo"`
	Concepto string `json:"concepto"`
	Estado   string `json:"estado"`
}

type ContractRequest struct {
	ValorTotal string             `json:"valor_total"`
	Cuotas     []InstallmentInput `json:"cuotas"`
}

// parseValue coerces a submitted amount; anything unparseable is 0.
func parseValue(s string) decimal.Decimal {
	v, err := decimal.NewFromString(sanitize.Line(s))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// parseDate coerces a submitted date; anything unparseable is nil.
func parseDate(s string) *time.Time {
	t, err := time.Parse("2006-01-02", sanitize.Line(s))
	if err != nil {
		return nil
	}
	return &t
}

/* ============================ Reconciliation ============================ */

// reconcilePlan is the full write set for one submission, computed in
// memory before anything touches the database. The submission is the
// authoritative installment set: persisted rows it does not mention are
// deleted.
type reconcilePlan struct {
	creates    []models.ContractInstallment
	updates    []models.ContractInstallment // existing rows with new field values
	deleteIDs  []uuid.UUID
	validCount int
}

// buildPlan diffs the submitted rows against the persisted installments.
// A row is valid iff its state is recognized and its value is > 0; a
// duplicate numero in the submission keeps the last occurrence.
func buildPlan(contractID uuid.UUID, existing []models.ContractInstallment, rows []InstallmentInput) reconcilePlan {
	byNumero := make(map[int]models.ContractInstallment, len(existing))
	for _, inst := range existing {
		byNumero[inst.NumeroCuota] = inst
	}

	submitted := make(map[int]InstallmentInput, len(rows))
	for _, r := range rows {
		if r.Numero > 0 {
			submitted[r.Numero] = r
		}
	}

	var plan reconcilePlan
	for numero, row := range submitted {
		val := parseValue(row.Valor)
		estado := models.InstallmentStatus(sanitize.Line(row.Estado))
		valid := estado.Known() && val.IsPositive()

		inst, exists := byNumero[numero]
		if !valid {
			if exists {
				plan.deleteIDs = append(plan.deleteIDs, inst.ID)
			}
			continue
		}

		plan.validCount++
		next := models.ContractInstallment{
			PaymentContractID: contractID,
			NumeroCuota:       numero,
			Valor:             val,
			Concepto:          sanitize.Line(row.Concepto),
			FechaVencimiento:  parseDate(row.Fecha),
			MetodoPago:        sanitize.Line(row.Metodo),
			Estado:            estado,
		}
		if exists {
			next.ID = inst.ID
			plan.updates = append(plan.updates, next)
		} else {
			plan.creates = append(plan.creates, next)
		}
	}

	// Persisted rows the submission dropped entirely.
	for numero, inst := range byNumero {
		if _, ok := submitted[numero]; !ok {
			plan.deleteIDs = append(plan.deleteIDs, inst.ID)
		}
	}

	return plan
}

// SaveContract creates or updates the client's payment contract and
// reconciles its installments against the submitted set. The whole write
// set is applied in one transaction; on any error nothing is persisted.
// Resubmitting the same set is a no-op on the resulting rows.
func (h *Handler) SaveContract(c *fiber.Ctx) error {
	client, err := h.requireOwnership(c, c.Params("id"))
	if err != nil {
		return err
	}

	var in ContractRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	tx := h.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var contract models.PaymentContract
	err = tx.First(&contract, "client_id = ?", client.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		contract = models.PaymentContract{ClientID: client.ID}
		if err := tx.Create(&contract).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	case err != nil:
		tx.Rollback()
		return fiber.ErrInternalServerError
	}

	var existing []models.ContractInstallment
	if err := tx.Where("payment_contract_id = ?", contract.ID).Find(&existing).Error; err != nil {
		tx.Rollback()
		return fiber.ErrInternalServerError
	}

	plan := buildPlan(contract.ID, existing, in.Cuotas)

	for i := range plan.creates {
		if err := tx.Create(&plan.creates[i]).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	}
	for i := range plan.updates {
		u := plan.updates[i]
		if err := tx.Model(&models.ContractInstallment{}).Where("id = ?", u.ID).
			Updates(map[string]any{
				"valor":             u.Valor,
				"concepto":          u.Concepto,
				"metodo_pago":       u.MetodoPago,
				"estado":            u.Estado,
				"fecha_vencimiento": u.FechaVencimiento,
			}).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	}
	if len(plan.deleteIDs) > 0 {
		if err := tx.Where("id IN ?", plan.deleteIDs).
			Delete(&models.ContractInstallment{}).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	}

	// The installment count reflects reality post-cleanup, not the count
	// the form asked for.
	if err := tx.Model(&contract).Updates(map[string]any{
		"valor_total":   parseValue(in.ValorTotal),
		"numero_cuotas": plan.validCount,
	}).Error; err != nil {
		tx.Rollback()
		return fiber.ErrInternalServerError
	}

	if err := tx.Commit().Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.log.Info("contract reconciled",
		zap.String("client_id", client.ID.String()),
		zap.Int("installments", plan.validCount),
		zap.Int("created", len(plan.creates)),
		zap.Int("deleted", len(plan.deleteIDs)))

	return c.JSON(fiber.Map{
		"contract_id":   contract.ID,
		"numero_cuotas": plan.validCount,
	})
}
