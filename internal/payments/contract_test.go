package payments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	h := NewHandler(db, zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Put("/clients/:id/contract", auth.RequireAuth(),
		auth.RequirePermission(auth.PermContractWrite), h.SaveContract)
	app.Put("/clients/:id/diagnosis", auth.RequireAuth(),
		auth.RequirePermission(auth.PermDiagnosisWrite), h.SaveDiagnosis)
	return app
}

func makeClient(t *testing.T, db *gorm.DB, owner *models.User) *models.Client {
	t.Helper()
	client := &models.Client{Nombre: "Carlos Prueba", Telefono: "3001234567", NumeroID: "10203040"}
	switch owner.Rol {
	case models.RoleAbogado:
		client.AbogadoID = &owner.ID
	case models.RoleAnalista, models.RoleAliado:
		client.AnalistaID = &owner.ID
	case models.RoleRadicador:
		client.RadicadorID = &owner.ID
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func makeUser(t *testing.T, db *gorm.DB, rol models.Role) (*models.User, string) {
	t.Helper()
	u := &models.User{
		NombreCompleto: "Test " + string(rol),
		Email:          fmt.Sprintf("%s_%s@test.local", rol, t.Name()),
		Rol:            rol,
		IsActive:       true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := auth.IssueToken(u.ID.String(), rol)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return u, token
}

func putJSON(t *testing.T, app *fiber.App, path, token string, body any) (int, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("PUT", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func installments(t *testing.T, db *gorm.DB, clientID any) []models.ContractInstallment {
	t.Helper()
	var contract models.PaymentContract
	if err := db.First(&contract, "client_id = ?", clientID).Error; err != nil {
		t.Fatalf("load contract: %v", err)
	}
	var rows []models.ContractInstallment
	if err := db.Where("payment_contract_id = ?", contract.ID).
		Order("numero_cuota ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load installments: %v", err)
	}
	return rows
}

func TestSaveContractFiltersInvalidRows(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, token := makeUser(t, db, models.RoleAnalista)
	client := makeClient(t, db, analyst)

	code, body := putJSON(t, app, "/clients/"+client.ID.String()+"/contract", token, ContractRequest{
		ValorTotal: "3000000",
		Cuotas: []InstallmentInput{
			{Numero: 1, Valor: "1000000", Fecha: "2026-01-15", Estado: "Pagada", Metodo: "Nequi"},
			{Numero: 2, Valor: "abc", Fecha: "2026-02-15", Estado: "Pendiente"},    // bad value -> 0 -> invalid
			{Numero: 3, Valor: "1000000", Fecha: "not-a-date", Estado: "Pendiente"}, // bad date is fine, kept with nil date
			{Numero: 4, Valor: "1000000", Estado: "Quizás"},                         // unknown state -> invalid
		},
	})
	if code != fiber.StatusOK {
		t.Fatalf("status = %d, body = %v", code, body)
	}
	if got := body["numero_cuotas"].(float64); got != 2 {
		t.Fatalf("numero_cuotas = %v, want 2", got)
	}

	rows := installments(t, db, client.ID)
	if len(rows) != 2 {
		t.Fatalf("persisted %d installments, want 2", len(rows))
	}
	if rows[0].NumeroCuota != 1 || rows[1].NumeroCuota != 3 {
		t.Fatalf("unexpected cuotas: %d, %d", rows[0].NumeroCuota, rows[1].NumeroCuota)
	}
	if rows[1].FechaVencimiento != nil {
		t.Fatalf("bad date should be stored as nil, got %v", rows[1].FechaVencimiento)
	}

	var contract models.PaymentContract
	if err := db.First(&contract, "client_id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if contract.NumeroCuotas != 2 {
		t.Fatalf("contract.NumeroCuotas = %d, want 2", contract.NumeroCuotas)
	}
}

func TestSaveContractReconcilesRemovedRows(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, token := makeUser(t, db, models.RoleAnalista)
	client := makeClient(t, db, analyst)
	path := "/clients/" + client.ID.String() + "/contract"

	code, _ := putJSON(t, app, path, token, ContractRequest{
		ValorTotal: "3000000",
		Cuotas: []InstallmentInput{
			{Numero: 1, Valor: "1000000", Estado: "Pagada"},
			{Numero: 2, Valor: "1000000", Estado: "Pendiente"},
			{Numero: 3, Valor: "1000000", Estado: "Pendiente"},
		},
	})
	if code != fiber.StatusOK {
		t.Fatalf("first submit: %d", code)
	}

	// Resubmit dropping cuota 3 and editing cuota 2.
	code, _ = putJSON(t, app, path, token, ContractRequest{
		ValorTotal: "2500000",
		Cuotas: []InstallmentInput{
			{Numero: 1, Valor: "1000000", Estado: "Pagada"},
			{Numero: 2, Valor: "1500000", Estado: "En Mora"},
		},
	})
	if code != fiber.StatusOK {
		t.Fatalf("second submit: %d", code)
	}

	rows := installments(t, db, client.ID)
	if len(rows) != 2 {
		t.Fatalf("persisted %d installments, want 2", len(rows))
	}
	if rows[1].Estado != models.InstallmentEnMora {
		t.Fatalf("cuota 2 estado = %q, want En Mora", rows[1].Estado)
	}
	if !rows[1].Valor.Equal(decimal.NewFromInt(1500000)) {
		t.Fatalf("cuota 2 valor = %s, want 1500000", rows[1].Valor)
	}
}

func TestSaveContractIdempotentResubmit(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	lawyer, token := makeUser(t, db, models.RoleAbogado)
	client := makeClient(t, db, lawyer)
	path := "/clients/" + client.ID.String() + "/contract"

	req := ContractRequest{
		ValorTotal: "2000000",
		Cuotas: []InstallmentInput{
			{Numero: 1, Valor: "1000000", Fecha: "2026-03-01", Estado: "Pendiente"},
			{Numero: 2, Valor: "1000000", Fecha: "2026-04-01", Estado: "Pendiente"},
		},
	}
	if code, _ := putJSON(t, app, path, token, req); code != fiber.StatusOK {
		t.Fatalf("first submit: %d", code)
	}
	first := installments(t, db, client.ID)

	if code, _ := putJSON(t, app, path, token, req); code != fiber.StatusOK {
		t.Fatalf("second submit: %d", code)
	}
	second := installments(t, db, client.ID)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("row counts: %d then %d, want 2 and 2", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("cuota %d row was recreated instead of updated", first[i].NumeroCuota)
		}
	}
}

func TestSaveContractDuplicateNumeroKeepsLast(t *testing.T) {
	plan := buildPlan(uuid.New(), nil, []InstallmentInput{
		{Numero: 1, Valor: "100", Estado: "Pendiente"},
		{Numero: 1, Valor: "250", Estado: "Pagada"},
	})
	if plan.validCount != 1 || len(plan.creates) != 1 {
		t.Fatalf("validCount = %d, creates = %d", plan.validCount, len(plan.creates))
	}
	if !plan.creates[0].Valor.Equal(decimal.NewFromInt(250)) {
		t.Fatalf("kept valor = %s, want last occurrence 250", plan.creates[0].Valor)
	}
}

func TestSaveContractForeignClientForbidden(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	owner, _ := makeUser(t, db, models.RoleAnalista)
	client := makeClient(t, db, owner)

	other := &models.User{NombreCompleto: "Otra Analista", Email: "otra@test.local",
		Rol: models.RoleAnalista, IsActive: true}
	if err := db.Create(other).Error; err != nil {
		t.Fatal(err)
	}
	token, err := auth.IssueToken(other.ID.String(), models.RoleAnalista)
	if err != nil {
		t.Fatal(err)
	}

	code, _ := putJSON(t, app, "/clients/"+client.ID.String()+"/contract", token, ContractRequest{
		ValorTotal: "1000",
		Cuotas:     []InstallmentInput{{Numero: 1, Valor: "1000", Estado: "Pendiente"}},
	})
	if code != fiber.StatusForbidden {
		t.Fatalf("status = %d, want 403", code)
	}
}

func TestSaveDiagnosisVerificationGate(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, analystToken := makeUser(t, db, models.RoleAnalista)
	lawyer, lawyerToken := makeUser(t, db, models.RoleAbogado)
	client := &models.Client{
		Nombre: "Carlos Prueba", Telefono: "3001234567",
		AnalistaID: &analyst.ID, AbogadoID: &lawyer.ID,
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatal(err)
	}
	path := "/clients/" + client.ID.String() + "/diagnosis"

	code, _ := putJSON(t, app, path, analystToken, diagnosisRequest{
		Valor: "80000", FechaPago: "2026-05-10", MetodoPago: "Nequi", Verificado: true,
	})
	if code != fiber.StatusOK {
		t.Fatalf("analyst save: %d", code)
	}

	var diag models.PaymentDiagnosis
	if err := db.First(&diag, "client_id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if diag.Verificado {
		t.Fatal("analyst must not be able to set verificado")
	}

	code, _ = putJSON(t, app, path, lawyerToken, diagnosisRequest{
		Valor: "80000", FechaPago: "2026-05-10", MetodoPago: "Nequi", Verificado: true,
	})
	if code != fiber.StatusOK {
		t.Fatalf("lawyer save: %d", code)
	}
	if err := db.First(&diag, "client_id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !diag.Verificado {
		t.Fatal("lawyer verification was not persisted")
	}
}

func TestSaveDiagnosisLenientParsing(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, token := makeUser(t, db, models.RoleAnalista)
	client := makeClient(t, db, analyst)

	code, _ := putJSON(t, app, "/clients/"+client.ID.String()+"/diagnosis", token, diagnosisRequest{
		Valor: "not-money", FechaPago: "someday", MetodoPago: "Daviplata",
	})
	if code != fiber.StatusOK {
		t.Fatalf("status = %d", code)
	}

	var diag models.PaymentDiagnosis
	if err := db.First(&diag, "client_id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !diag.Valor.IsZero() {
		t.Fatalf("valor = %s, want 0", diag.Valor)
	}
	if diag.FechaPago != nil {
		t.Fatalf("fecha_pago = %v, want nil", diag.FechaPago)
	}
}
