package main

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/jpcardenasl/recovery-crm-backend/internal/admin"
	"github.com/jpcardenasl/recovery-crm-backend/internal/appointments"
	"github.com/jpcardenasl/recovery-crm-backend/internal/auth"
	"github.com/jpcardenasl/recovery-crm-backend/internal/chat"
	"github.com/jpcardenasl/recovery-crm-backend/internal/clients"
	"github.com/jpcardenasl/recovery-crm-backend/internal/documents"
	"github.com/jpcardenasl/recovery-crm-backend/internal/financial"
	"github.com/jpcardenasl/recovery-crm-backend/internal/payments"
	"github.com/jpcardenasl/recovery-crm-backend/internal/storage"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/config"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/database"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/logger"
	"github.com/jpcardenasl/recovery-crm-backend/pkg/models"
)

func main() {
	cfg := config.Load()
	log := logger.New()
	defer log.Sync()

	db := database.Init(cfg.DatabaseURL)
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	store, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		log.Fatal("storage init failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    25 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	authH := auth.NewHandler(db)
	clientH := clients.NewHandler(db, log)
	paymentH := payments.NewHandler(db, log)
	allyH := payments.NewAllyHandler(db, store)
	docH := documents.NewHandler(db, log, store)
	chatH := chat.NewHandler(db)
	finH := financial.NewHandler(db, log, store)
	apptH := appointments.NewHandler(db, log)
	adminH := admin.NewHandler(db, log)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	api := app.Group("/api")
	api.Post("/auth/login", authH.Login)

	api.Use(auth.RequireAuth())
	api.Get("/auth/me", authH.Me)

	/* ------------------------------ Clients ------------------------------ */
	cl := api.Group("/clients")
	cl.Post("/", auth.RequirePermission(auth.PermClientCreate), clientH.Create)
	cl.Get("/", auth.RequirePermission(auth.PermClientView), clientH.List)
	cl.Get("/:id", auth.RequirePermission(auth.PermClientView), clientH.GetDetail)
	cl.Patch("/:id", auth.RequirePermission(auth.PermClientEdit), clientH.Edit)
	cl.Put("/:id/analysis", auth.RequirePermission(auth.PermAnalysisWrite), clientH.UpdateAnalysis)
	cl.Post("/:id/send-to-lawyer", auth.RequirePermission(auth.PermSendToLawyer), clientH.SendToLawyer)
	cl.Put("/:id/status", auth.RequirePermission(auth.PermStatusUpdate), clientH.UpdateStatus)
	cl.Get("/:id/status-log", auth.RequirePermission(auth.PermClientView), clientH.StatusLog)
	cl.Post("/:id/obligations", auth.RequirePermission(auth.PermObligationWrite), clientH.AddObligation)
	cl.Put("/obligations/:obligationID/legal-status", auth.RequirePermission(auth.PermObligationWrite), clientH.UpdateLegalStatus)
	cl.Post("/:id/notes", auth.RequirePermission(auth.PermNoteWrite), clientH.AddNote)
	cl.Delete("/:id", auth.RequirePermission(auth.PermClientDelete), adminH.DeleteClient)

	/* ------------------------------ Payments ----------------------------- */
	cl.Put("/:id/diagnosis", auth.RequirePermission(auth.PermDiagnosisWrite), paymentH.SaveDiagnosis)
	cl.Put("/:id/diagnosis/verify", auth.RequirePermission(auth.PermDiagnosisVerify), paymentH.VerifyDiagnosis)
	cl.Put("/:id/contract", auth.RequirePermission(auth.PermContractWrite), paymentH.SaveContract)

	ally := api.Group("/ally/payments", auth.RequirePermission(auth.PermAllyPayment))
	ally.Post("/", allyH.UploadProof)
	ally.Get("/", allyH.ListProofs)
	ally.Get("/:paymentID/download", allyH.DownloadProof)

	/* ----------------------------- Documents ----------------------------- */
	cl.Post("/:id/documents", auth.RequirePermission(auth.PermDocumentUpload), docH.Upload)
	cl.Get("/:id/documents", docH.List)
	api.Get("/documents/:documentID/download", docH.Download)
	api.Patch("/documents/:documentID/visibility", auth.RequirePermission(auth.PermDocumentToggle), docH.ToggleVisibility)

	/* ------------------------------- Chat -------------------------------- */
	cl.Post("/:id/messages", auth.RequirePermission(auth.PermChatSend), chatH.Send)
	cl.Get("/:id/messages", chatH.History)
	api.Get("/portal", auth.RequirePermission(auth.PermPortalView), chatH.Portal)

	/* ---------------------------- Appointments --------------------------- */
	cl.Get("/:id/appointments", auth.RequirePermission(auth.PermAppointmentBook), apptH.List)
	cl.Get("/:id/appointments/slots", auth.RequirePermission(auth.PermAppointmentBook), apptH.Slots)
	cl.Post("/:id/appointments", auth.RequirePermission(auth.PermAppointmentBook), apptH.Book)
	api.Delete("/appointments/:appointmentID", auth.RequirePermission(auth.PermAppointmentCancel), apptH.Cancel)

	/* ----------------------------- Financial ----------------------------- */
	fin := api.Group("/financial", auth.RequirePermission(auth.PermAccountingView))
	fin.Get("/dashboard", finH.Dashboard)
	fin.Get("/diagnoses", finH.ListDiagnoses)
	fin.Get("/installments", finH.ListInstallments)
	fin.Get("/expenses", finH.ListExpenses)
	fin.Post("/expenses", auth.RequirePermission(auth.PermExpenseWrite), finH.AddExpenses)
	fin.Get("/balance.pdf", finH.BalancePDF)

	/* ------------------------------- Admin ------------------------------- */
	adm := api.Group("/admin")
	adm.Post("/users", auth.RequirePermission(auth.PermUserManage), adminH.CreateUser)
	adm.Get("/users", auth.RequirePermission(auth.PermUserManage), adminH.ListUsers)
	adm.Delete("/users/:userID", auth.RequirePermission(auth.PermUserManage), adminH.DeleteUser)
	adm.Post("/clients/:id/portal-access", auth.RequirePermission(auth.PermPortalAccessManage), adminH.GenerateClientAccess)
	adm.Delete("/clients/:id/portal-access", auth.RequirePermission(auth.PermPortalAccessManage), adminH.RevokeClientAccess)

	log.Info("server listening", zap.String("port", cfg.ServerPort))
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
