package financial

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

// DiagnosisUnitCost is the fixed internal cost the firm carries per
// verified diagnosis evaluation (lab fees, credit bureau pulls).
var DiagnosisUnitCost = decimal.NewFromInt(32000)

// BalanceSummary aggregates income, costs and expenses over a date range.
// Income from installments is attributed to the period by due date, not
// by the date the payment actually cleared.
type BalanceSummary struct {
	IncomeDiagnosis    decimal.Decimal `json:"income_diagnosis"`
	IncomeInstallments decimal.Decimal `json:"income_installments"`
	GrossIncome        decimal.Decimal `json:"gross_income"`
	BusinessCosts      decimal.Decimal `json:"business_costs"`
	AdminExpenses      decimal.Decimal `json:"admin_expenses"`
	NetBalance         decimal.Decimal `json:"net_balance"`
	VerifiedDiagnoses  int64           `json:"verified_diagnoses"`
	PaidInstallments   int64           `json:"paid_installments"`
}

// sumDecimal runs an aggregate query whose single column is a SUM, with
// NULL folded to zero.
func sumDecimal(q *gorm.DB) (decimal.Decimal, error) {
	var raw *string
	if err := q.Scan(&raw).Error; err != nil {
		return decimal.Zero, err
	}
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

// ComputeBalance builds the balance summary for [start, end] inclusive.
// Either bound may be zero to leave that side open.
func ComputeBalance(db *gorm.DB, start, end time.Time) (*BalanceSummary, error) {
	diagQ := db.Model(&models.PaymentDiagnosis{}).
		Select("SUM(valor)").
		Where("verificado = ?", true)
	instQ := db.Model(&models.ContractInstallment{}).
		Select("SUM(valor)").
		Where("estado = ?", models.InstallmentPagada)
	expQ := db.Model(&models.AdministrativeExpense{}).
		Select("SUM(valor)")

	diagCount := db.Model(&models.PaymentDiagnosis{}).Where("verificado = ?", true)
	instCount := db.Model(&models.ContractInstallment{}).Where("estado = ?", models.InstallmentPagada)

	if !start.IsZero() {
		diagQ = diagQ.Where("fecha_pago >= ?", start)
		instQ = instQ.Where("fecha_vencimiento >= ?", start)
		expQ = expQ.Where("fecha >= ?", start)
		diagCount = diagCount.Where("fecha_pago >= ?", start)
		instCount = instCount.Where("fecha_vencimiento >= ?", start)
	}
	if !end.IsZero() {
		diagQ = diagQ.Where("fecha_pago <= ?", end)
		instQ = instQ.Where("fecha_vencimiento <= ?", end)
		expQ = expQ.Where("fecha <= ?", end)
		diagCount = diagCount.Where("fecha_pago <= ?", end)
		instCount = instCount.Where("fecha_vencimiento <= ?", end)
	}

	var s BalanceSummary
	var err error
	if s.IncomeDiagnosis, err = sumDecimal(diagQ); err != nil {
		return nil, err
	}
	if s.IncomeInstallments, err = sumDecimal(instQ); err != nil {
		return nil, err
	}
	if s.AdminExpenses, err = sumDecimal(expQ); err != nil {
		return nil, err
	}
	if err = diagCount.Count(&s.VerifiedDiagnoses).Error; err != nil {
		return nil, err
	}
	if err = instCount.Count(&s.PaidInstallments).Error; err != nil {
		return nil, err
	}

	s.GrossIncome = s.IncomeDiagnosis.Add(s.IncomeInstallments)
	s.BusinessCosts = DiagnosisUnitCost.Mul(decimal.NewFromInt(s.VerifiedDiagnoses))
	s.NetBalance = s.GrossIncome.Sub(s.BusinessCosts).Sub(s.AdminExpenses)
	return &s, nil
}

// FunnelStats counts clients per lifecycle state for the dashboard.
func FunnelStats(db *gorm.DB) (map[string]int64, error) {
	type row struct {
		Estado string
		N      int64
	}
	var rows []row
	if err := db.Model(&models.Client{}).
		Select("estado, COUNT(*) AS n").
		Group("estado").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Estado] = r.N
	}
	return out, nil
}
