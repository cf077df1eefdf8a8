package auth

import "github.com/jpcardenasl/recovery-crm-backend/pkg/models"

// Permission names one privileged operation. Routes are gated on
// permissions, never on raw role strings, so the role→operation mapping
// lives in exactly one place.
type Permission string

const (
	PermClientCreate  Permission = "client:create"
	PermClientEdit    Permission = "client:edit"
	PermClientDelete  Permission = "client:delete"
	PermClientView    Permission = "client:view"
	PermSendToLawyer  Permission = "client:send_to_lawyer"
	PermStatusUpdate  Permission = "client:update_status"
	PermAnalysisWrite Permission = "client:write_analysis"

	PermObligationWrite Permission = "obligation:write"
	PermNoteWrite       Permission = "note:write"

	PermDiagnosisWrite  Permission = "payment:diagnosis_write"
	PermDiagnosisVerify Permission = "payment:diagnosis_verify"
	PermContractWrite   Permission = "payment:contract_write"
	PermAllyPayment     Permission = "payment:ally_proof"

	PermDocumentUpload Permission = "document:upload"
	PermDocumentToggle Permission = "document:toggle_visibility"

	PermChatSend   Permission = "chat:send"
	PermPortalView Permission = "portal:view"

	PermAppointmentBook   Permission = "appointment:book"
	PermAppointmentCancel Permission = "appointment:cancel"

	PermAccountingView Permission = "financial:view"
	PermExpenseWrite   Permission = "financial:expense_write"

	PermUserManage         Permission = "admin:users"
	PermPortalAccessManage Permission = "admin:portal_access"
)

func perms(ps ...Permission) map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(ps))
	for _, p := range ps {
		m[p] = struct{}{}
	}
	return m
}

var rolePermissions = map[models.Role]map[Permission]struct{}{
	models.RoleAdmin: perms(
		PermClientCreate, PermClientEdit, PermClientDelete, PermClientView,
		PermStatusUpdate, PermObligationWrite, PermNoteWrite,
		PermDiagnosisWrite, PermDiagnosisVerify, PermContractWrite,
		PermDocumentUpload, PermDocumentToggle, PermChatSend,
		PermAppointmentBook, PermAppointmentCancel,
		PermAccountingView, PermExpenseWrite,
		PermUserManage, PermPortalAccessManage,
	),
	models.RoleAnalista: perms(
		PermClientCreate, PermClientEdit, PermClientView, PermSendToLawyer,
		PermAnalysisWrite, PermObligationWrite, PermNoteWrite,
		PermDiagnosisWrite, PermContractWrite, PermDocumentUpload, PermChatSend,
		PermAppointmentBook,
	),
	models.RoleAbogado: perms(
		PermClientEdit, PermClientView, PermStatusUpdate, PermAnalysisWrite,
		PermObligationWrite, PermNoteWrite,
		PermDiagnosisWrite, PermDiagnosisVerify, PermContractWrite,
		PermDocumentUpload, PermDocumentToggle, PermChatSend,
		PermAppointmentBook, PermAppointmentCancel,
		PermAccountingView, PermExpenseWrite,
	),
	models.RoleAliado: perms(
		PermClientCreate, PermClientEdit, PermClientView, PermSendToLawyer,
		PermAnalysisWrite, PermObligationWrite, PermNoteWrite,
		PermDiagnosisWrite, PermContractWrite, PermDocumentUpload, PermChatSend,
		PermAppointmentBook, PermAllyPayment,
	),
	models.RoleRadicador: perms(
		PermClientCreate, PermClientView, PermSendToLawyer, PermAppointmentBook,
	),
	models.RoleCliente: perms(
		PermChatSend, PermPortalView, PermAppointmentBook, PermAppointmentCancel,
	),
}

// Can reports whether the role is allowed to perform p.
func Can(role models.Role, p Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[p]
	return ok
}
