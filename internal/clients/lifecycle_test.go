package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
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
	app.Use(auth.RequireAuth())
	app.Post("/clients", auth.RequirePermission(auth.PermClientCreate), h.Create)
	app.Patch("/clients/:id", auth.RequirePermission(auth.PermClientEdit), h.Edit)
	app.Post("/clients/:id/send-to-lawyer", auth.RequirePermission(auth.PermSendToLawyer), h.SendToLawyer)
	app.Put("/clients/:id/status", auth.RequirePermission(auth.PermStatusUpdate), h.UpdateStatus)
	return app
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

func do(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
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

func ownedClient(t *testing.T, db *gorm.DB, analyst *models.User, estado models.ClientStatus) *models.Client {
	t.Helper()
	c := &models.Client{
		Nombre:     "María Prueba",
		Telefono:   "3009876543",
		NumeroID:   fmt.Sprintf("9%08d", len(t.Name())),
		Estado:     estado,
		AnalistaID: &analyst.ID,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatal(err)
	}
	return c
}

/* ============================ Send to lawyer ============================ */

func TestSendToLawyerNoLawyerAvailable(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, token := makeUser(t, db, models.RoleAnalista)
	client := ownedClient(t, db, analyst, models.StatusNuevo)

	code, body := do(t, app, "POST", "/clients/"+client.ID.String()+"/send-to-lawyer", token, nil)
	if code != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %v)", code, body)
	}

	var fresh models.Client
	if err := db.First(&fresh, "id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.Estado != models.StatusNuevo {
		t.Fatalf("estado = %q, client must stay untouched", fresh.Estado)
	}
	if fresh.AbogadoID != nil {
		t.Fatal("abogado_id must remain unset")
	}
}

func TestSendToLawyerAssignsFirstActive(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, token := makeUser(t, db, models.RoleAnalista)
	client := ownedClient(t, db, analyst, models.StatusNuevo)

	inactive := &models.User{NombreCompleto: "Inactivo", Email: "off@test.local",
		Rol: models.RoleAbogado, IsActive: false}
	if err := db.Create(inactive).Error; err != nil {
		t.Fatal(err)
	}
	lawyer, _ := makeUser(t, db, models.RoleAbogado)

	code, _ := do(t, app, "POST", "/clients/"+client.ID.String()+"/send-to-lawyer", token, nil)
	if code != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}

	var fresh models.Client
	if err := db.First(&fresh, "id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.Estado != models.StatusPendienteAnalisis {
		t.Fatalf("estado = %q, want Pendiente_Analisis", fresh.Estado)
	}
	if fresh.AbogadoID == nil || *fresh.AbogadoID != lawyer.ID {
		t.Fatal("case was not assigned to the active lawyer")
	}
	if fresh.LastStatusUpdate == nil {
		t.Fatal("last_status_update was not stamped")
	}

	var audit int64
	db.Model(&models.StatusHistory{}).Where("client_id = ?", client.ID).Count(&audit)
	if audit != 1 {
		t.Fatalf("status history rows = %d, want 1", audit)
	}
}

/* ============================ Status updates ============================ */

func TestUpdateStatusNoOpKeepsTimestamp(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	_, token := makeUser(t, db, models.RoleAdmin)
	analyst, _ := makeUser(t, db, models.RoleAnalista)
	client := ownedClient(t, db, analyst, models.StatusRadicado)

	code, body := do(t, app, "PUT", "/clients/"+client.ID.String()+"/status", token,
		map[string]string{"estado": "Radicado"})
	if code != fiber.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if changed := body["changed"].(bool); changed {
		t.Fatal("same-status write must report changed=false")
	}

	var fresh models.Client
	if err := db.First(&fresh, "id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.LastStatusUpdate != nil {
		t.Fatal("no-op must not stamp last_status_update")
	}

	var audit int64
	db.Model(&models.StatusHistory{}).Where("client_id = ?", client.ID).Count(&audit)
	if audit != 0 {
		t.Fatalf("no-op wrote %d audit rows", audit)
	}
}

func TestUpdateStatusRejectsUnknownState(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	_, token := makeUser(t, db, models.RoleAdmin)
	analyst, _ := makeUser(t, db, models.RoleAnalista)
	client := ownedClient(t, db, analyst, models.StatusNuevo)

	code, _ := do(t, app, "PUT", "/clients/"+client.ID.String()+"/status", token,
		map[string]string{"estado": "Casi_Listo"})
	if code != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

/* =============================== Intake ================================= */

func TestCreateRejectsDuplicateDocumentNumber(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	_, token := makeUser(t, db, models.RoleAnalista)

	payload := map[string]any{
		"nombre": "Pedro Uno", "telefono": "3001112233",
		"tipo_id": "CC", "numero_id": "55667788",
	}
	if code, _ := do(t, app, "POST", "/clients", token, payload); code != fiber.StatusCreated {
		t.Fatalf("first create: %d", code)
	}

	payload["nombre"] = "Pedro Dos"
	code, _ := do(t, app, "POST", "/clients", token, payload)
	if code != fiber.StatusConflict {
		t.Fatalf("duplicate create: %d, want 409", code)
	}

	var total int64
	db.Model(&models.Client{}).Where("numero_id = ?", "55667788").Count(&total)
	if total != 1 {
		t.Fatalf("clients with the document = %d, want 1", total)
	}
}

func TestCreateRejectsDuplicateContractNumber(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	_, token := makeUser(t, db, models.RoleAliado)

	first := map[string]any{
		"nombre": "Aliado Uno", "telefono": "3004445566", "contract_number": "CT-2026-001",
	}
	if code, _ := do(t, app, "POST", "/clients", token, first); code != fiber.StatusCreated {
		t.Fatalf("first create: %d", code)
	}

	second := map[string]any{
		"nombre": "Aliado Dos", "telefono": "3004445567", "contract_number": "CT-2026-001",
	}
	code, _ := do(t, app, "POST", "/clients", token, second)
	if code != fiber.StatusConflict {
		t.Fatalf("duplicate contract create: %d, want 409", code)
	}

	var total int64
	db.Model(&models.Client{}).Where("contract_number = ?", "CT-2026-001").Count(&total)
	if total != 1 {
		t.Fatalf("clients with the contract = %d, want 1", total)
	}

	// Clients without a contract number never collide with each other.
	for _, nombre := range []string{"Sin Uno", "Sin Dos"} {
		payload := map[string]any{"nombre": nombre, "telefono": "3009990000"}
		if code, _ := do(t, app, "POST", "/clients", token, payload); code != fiber.StatusCreated {
			t.Fatalf("create %s: %d", nombre, code)
		}
	}
}

func TestPromoteProspectExactlyOnce(t *testing.T) {
	db := setupDB(t)
	app := setupApp(t, db)
	analyst, token := makeUser(t, db, models.RoleAnalista)
	client := ownedClient(t, db, analyst, models.StatusProspecto)
	path := "/clients/" + client.ID.String()

	payload := map[string]any{
		"nombre": client.Nombre, "telefono": client.Telefono, "promote": true,
	}
	code, _ := do(t, app, "PATCH", path, token, payload)
	if code != fiber.StatusOK {
		t.Fatalf("promote: %d", code)
	}

	var fresh models.Client
	if err := db.First(&fresh, "id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.Estado != models.StatusNuevo {
		t.Fatalf("estado = %q, want Nuevo", fresh.Estado)
	}

	// A second promote has nothing to promote; the status stays Nuevo.
	if code, _ := do(t, app, "PATCH", path, token, payload); code != fiber.StatusOK {
		t.Fatalf("second promote: %d", code)
	}
	if err := db.First(&fresh, "id = ?", client.ID).Error; err != nil {
		t.Fatal(err)
	}
	if fresh.Estado != models.StatusNuevo {
		t.Fatalf("estado after re-promote = %q, want Nuevo", fresh.Estado)
	}
}
