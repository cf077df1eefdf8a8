package appointments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

func setup(t *testing.T) (*gorm.DB, *fiber.App) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := NewHandler(db, zap.NewNop())
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(auth.RequireAuth())
	app.Get("/clients/:id/appointments/slots", auth.RequirePermission(auth.PermAppointmentBook), h.Slots)
	app.Post("/clients/:id/appointments", auth.RequirePermission(auth.PermAppointmentBook), h.Book)
	app.Delete("/appointments/:appointmentID", auth.RequirePermission(auth.PermAppointmentCancel), h.Cancel)
	return db, app
}

// pinClock fixes the handler clock to a Monday morning.
func pinClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := nowFn
	nowFn = func() time.Time { return at }
	t.Cleanup(func() { nowFn = prev })
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
		t.Fatal(err)
	}
	token, err := auth.IssueToken(u.ID.String(), rol)
	if err != nil {
		t.Fatal(err)
	}
	return u, token
}

func request(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
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
		t.Fatal(err)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func slotTimes(body map[string]any) []string {
	raw, _ := body["items"].([]any)
	out := make([]string, 0, len(raw))
	for _, it := range raw {
		m := it.(map[string]any)
		out = append(out, m["time"].(string))
	}
	return out
}

// monday is a fixed reference Monday at 09:00 local time.
var monday = time.Date(2026, 9, 7, 9, 0, 0, 0, bogota)

func seedCase(t *testing.T, db *gorm.DB, lawyer *models.User, portal *models.User) *models.Client {
	t.Helper()
	client := &models.Client{Nombre: "Cita Prueba", Telefono: "3001112233"}
	if lawyer != nil {
		client.AbogadoID = &lawyer.ID
	}
	if portal != nil {
		client.LoginUserID = &portal.ID
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatal(err)
	}
	return client
}

func TestSlotsRejectWeekendsAndPastDates(t *testing.T) {
	db, app := setup(t)
	pinClock(t, monday)

	lawyer, _ := makeUser(t, db, models.RoleAbogado)
	_, token := makeUser(t, db, models.RoleAnalista)
	client := seedCase(t, db, lawyer, nil)
	base := "/clients/" + client.ID.String() + "/appointments/slots"

	for name, date := range map[string]string{
		"friday":    "2026-09-11",
		"saturday":  "2026-09-12",
		"sunday":    "2026-09-13",
		"past":      "2026-09-01",
		"malformed": "soon",
	} {
		code, body := request(t, app, "GET", base+"?date="+date, token, nil)
		if code != fiber.StatusOK {
			t.Fatalf("%s: status = %d", name, code)
		}
		if got := slotTimes(body); len(got) != 0 {
			t.Errorf("%s: slots = %v, want none", name, got)
		}
	}
}

func TestSlotsGridDependsOnRole(t *testing.T) {
	db, app := setup(t)
	pinClock(t, monday)

	lawyer, _ := makeUser(t, db, models.RoleAbogado)
	portal, portalToken := makeUser(t, db, models.RoleCliente)
	_, staffToken := makeUser(t, db, models.RoleAnalista)
	client := seedCase(t, db, lawyer, portal)
	// Tomorrow (Tuesday) avoids the same-day past-time filter.
	base := "/clients/" + client.ID.String() + "/appointments/slots?date=2026-09-08"

	_, body := request(t, app, "GET", base, staffToken, nil)
	if got := slotTimes(body); len(got) != len(staffSlots) || got[0] != "08:00" {
		t.Fatalf("staff slots = %v", got)
	}

	_, body = request(t, app, "GET", base, portalToken, nil)
	if got := slotTimes(body); len(got) != len(clientSlots) || got[0] != "14:00" {
		t.Fatalf("client slots = %v", got)
	}
}

func TestSlotsExcludeSameDayPastAndBookedTimes(t *testing.T) {
	db, app := setup(t)
	pinClock(t, monday) // 09:00, so 08:00 and 08:45 are gone

	lawyer, _ := makeUser(t, db, models.RoleAbogado)
	_, token := makeUser(t, db, models.RoleAnalista)
	client := seedCase(t, db, lawyer, nil)

	taken := time.Date(2026, 9, 7, 10, 15, 0, 0, bogota)
	appt := models.Interaction{ClientID: client.ID, UserID: lawyer.ID,
		FechaHoraCita: &taken, Tipo: models.InteractionReunion}
	if err := db.Create(&appt).Error; err != nil {
		t.Fatal(err)
	}

	_, body := request(t, app, "GET",
		"/clients/"+client.ID.String()+"/appointments/slots?date=2026-09-07", token, nil)
	got := slotTimes(body)
	for _, s := range got {
		if s == "08:00" || s == "08:45" {
			t.Errorf("past slot %s offered", s)
		}
		if s == "10:15" {
			t.Error("booked slot 10:15 offered")
		}
	}
	if len(got) != len(staffSlots)-3 {
		t.Fatalf("slots = %v, want %d entries", got, len(staffSlots)-3)
	}
}

func TestBookRejectsDoubleBooking(t *testing.T) {
	db, app := setup(t)
	pinClock(t, monday)

	lawyer, _ := makeUser(t, db, models.RoleAbogado)
	_, token := makeUser(t, db, models.RoleAnalista)
	client := seedCase(t, db, lawyer, nil)
	other := seedCase(t, db, lawyer, nil)
	payload := map[string]string{"date": "2026-09-08", "time": "09:30"}

	code, _ := request(t, app, "POST", "/clients/"+client.ID.String()+"/appointments", token, payload)
	if code != fiber.StatusCreated {
		t.Fatalf("first booking: %d", code)
	}

	// Same lawyer, same slot, different case.
	code, _ = request(t, app, "POST", "/clients/"+other.ID.String()+"/appointments", token, payload)
	if code != fiber.StatusConflict {
		t.Fatalf("double booking: %d, want 409", code)
	}

	var total int64
	db.Model(&models.Interaction{}).Where("user_id = ?", lawyer.ID).Count(&total)
	if total != 1 {
		t.Fatalf("appointments = %d, want 1", total)
	}
}

func TestBookRequiresAssignedLawyer(t *testing.T) {
	db, app := setup(t)
	pinClock(t, monday)

	_, token := makeUser(t, db, models.RoleAnalista)
	client := seedCase(t, db, nil, nil)

	code, _ := request(t, app, "POST", "/clients/"+client.ID.String()+"/appointments", token,
		map[string]string{"date": "2026-09-08", "time": "09:30"})
	if code != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409", code)
	}
}

func TestCancelPermissions(t *testing.T) {
	db, app := setup(t)
	pinClock(t, monday)

	lawyer, lawyerToken := makeUser(t, db, models.RoleAbogado)
	otherLawyer := &models.User{NombreCompleto: "Otro", Email: "otro@test.local",
		Rol: models.RoleAbogado, IsActive: true}
	if err := db.Create(otherLawyer).Error; err != nil {
		t.Fatal(err)
	}
	otherToken, err := auth.IssueToken(otherLawyer.ID.String(), models.RoleAbogado)
	if err != nil {
		t.Fatal(err)
	}
	portal, portalToken := makeUser(t, db, models.RoleCliente)
	client := seedCase(t, db, lawyer, portal)

	book := func() string {
		when := time.Date(2026, 9, 8, 9, 30, 0, 0, bogota)
		appt := models.Interaction{ClientID: client.ID, UserID: lawyer.ID,
			FechaHoraCita: &when, Tipo: models.InteractionReunion}
		if err := db.Create(&appt).Error; err != nil {
			t.Fatal(err)
		}
		return appt.ID.String()
	}

	// A lawyer cannot cancel someone else's meeting.
	id := book()
	if code, _ := request(t, app, "DELETE", "/appointments/"+id, otherToken, nil); code != fiber.StatusForbidden {
		t.Fatalf("foreign lawyer cancel: %d, want 403", code)
	}

	// The assigned lawyer can.
	if code, _ := request(t, app, "DELETE", "/appointments/"+id, lawyerToken, nil); code != fiber.StatusOK {
		t.Fatalf("own cancel: %d", code)
	}

	// The portal client can cancel their own case's meeting.
	id = book()
	if code, _ := request(t, app, "DELETE", "/appointments/"+id, portalToken, nil); code != fiber.StatusOK {
		t.Fatalf("portal cancel: %d", code)
	}

	var left int64
	db.Model(&models.Interaction{}).Count(&left)
	if left != 0 {
		t.Fatalf("appointments left = %d, want 0", left)
	}
}
