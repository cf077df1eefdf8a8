package financial

import (
	"crypto/md5"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"
)

// BalancePDF renders the balance summary as a downloadable PDF. Reports
// are cached on disk keyed by the date range, so repeating the same
// request serves the previously generated file.
func (h *Handler) BalancePDF(c *fiber.Ctx) error {
	start, end := parseRange(c)

	key := fmt.Sprintf("%s_%s", c.Query("start"), c.Query("end"))
	hash := fmt.Sprintf("%x", md5.Sum([]byte(key)))
	path := h.store.ReportPath("balance", hash)

	if _, err := os.Stat(path); err == nil {
		return c.Download(path, "balance.pdf")
	}

	summary, err := ComputeBalance(h.db, start, end)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	if err := renderBalancePDF(path, summary, start, end); err != nil {
		h.log.Error("balance pdf render failed", zap.Error(err))
		return fiber.ErrInternalServerError
	}
	return c.Download(path, "balance.pdf")
}

func rangeLabel(start, end time.Time) string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02")
	}
	return fmt.Sprintf("Periodo: %s a %s", f(start), f(end))
}

func renderBalancePDF(path string, s *BalanceSummary, start, end time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Balance Financiero")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, rangeLabel(start, end))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Generado: "+time.Now().Format("2006-01-02 15:04"))
	pdf.Ln(12)

	rows := []struct {
		label string
		value string
	}{
		{"Ingresos por diagnóstico", s.IncomeDiagnosis.StringFixed(2)},
		{"Ingresos por cuotas", s.IncomeInstallments.StringFixed(2)},
		{"Ingreso bruto", s.GrossIncome.StringFixed(2)},
		{"Costos de negocio", s.BusinessCosts.StringFixed(2)},
		{"Gastos administrativos", s.AdminExpenses.StringFixed(2)},
		{"Balance neto", s.NetBalance.StringFixed(2)},
	}

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(110, 8, "Concepto", "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, "Valor", "1", 1, "R", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	for _, r := range rows {
		pdf.CellFormat(110, 8, r.label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 8, r.value, "1", 1, "R", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Diagnósticos verificados: %d", s.VerifiedDiagnoses))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Cuotas pagadas: %d", s.PaidInstallments))

	return pdf.OutputFileAndClose(path)
}
