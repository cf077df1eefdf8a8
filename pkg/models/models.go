package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleAdmin     Role = "Admin"
	RoleAnalista  Role = "Analista"
	RoleAbogado   Role = "Abogado"
	RoleAliado    Role = "Aliado"
	RoleRadicador Role = "Radicador"
	RoleCliente   Role = "Cliente"
)

// ClientStatus defines lifecycle states for a client record.
type ClientStatus string

const (
	StatusNuevo                    ClientStatus = "Nuevo"
	StatusProspecto                ClientStatus = "Prospecto"
	StatusInformacionIncompleta    ClientStatus = "Informacion_Incompleta"
	StatusPendienteAnalisis        ClientStatus = "Pendiente_Analisis"
	StatusConAnalisis              ClientStatus = "Con_Analisis"
	StatusConContrato              ClientStatus = "Con_Contrato"
	StatusRadicado                 ClientStatus = "Radicado"
	StatusFinalizado               ClientStatus = "Finalizado"
	StatusFinalizadoExitoso        ClientStatus = "Finalizado_Exitoso"
	StatusFinalizadoProcesoCredito ClientStatus = "Finalizado_Proceso_Credito"
	StatusCerradoPago              ClientStatus = "Cerrado_Pago"
	StatusSuspendidoPago           ClientStatus = "Suspendido_Pago"
)

var clientStatuses = map[ClientStatus]struct{}{
	StatusNuevo: {}, StatusProspecto: {}, StatusInformacionIncompleta: {},
	StatusPendienteAnalisis: {}, StatusConAnalisis: {}, StatusConContrato: {},
	StatusRadicado: {}, StatusFinalizado: {}, StatusFinalizadoExitoso: {},
	StatusFinalizadoProcesoCredito: {}, StatusCerradoPago: {}, StatusSuspendidoPago: {},
}

// Known reports true if s belongs to the closed status set. The lifecycle
// used to be a free-text column; every write path must go through this check.
func (s ClientStatus) Known() bool {
	_, ok := clientStatuses[s]
	return ok
}

// InstallmentStatus defines lifecycle states for one contract installment.
type InstallmentStatus string

const (
	InstallmentPendiente InstallmentStatus = "Pendiente"
	InstallmentPagada    InstallmentStatus = "Pagada"
	InstallmentEnMora    InstallmentStatus = "En Mora"
	InstallmentAnulada   InstallmentStatus = "Anulada"
)

// Known reports true if s is a recognized installment state.
func (s InstallmentStatus) Known() bool {
	switch s {
	case InstallmentPendiente, InstallmentPagada, InstallmentEnMora, InstallmentAnulada:
		return true
	}
	return false
}

// LegalStatus tracks the legal-process sub-status of one obligation.
type LegalStatus string

const (
	LegalSinIniciar LegalStatus = "Sin Iniciar"
	LegalRadicado   LegalStatus = "Radicado"
	LegalEnProceso  LegalStatus = "En Proceso"
	LegalEnTutela   LegalStatus = "En Tutela"
	LegalFinalizado LegalStatus = "Finalizado"
)

/* =============================== Entities =============================== */

// User represents a staff member or a client portal account.
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	NombreCompleto string    `gorm:"size:100;not null" json:"nombre_completo"`
	Telefono       string    `gorm:"size:20" json:"telefono"`
	Email          string    `gorm:"size:120;uniqueIndex;not null" json:"email"`
	Rol            Role      `gorm:"type:varchar(20);not null" json:"rol"`
	PasswordHash   string    `gorm:"size:200" json:"-"`
	IsActive       bool      `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Client is a case/customer record tracked through the recovery process.
type Client struct {
	ID                 uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Nombre             string       `gorm:"size:100;not null" json:"nombre"`
	TipoID             string       `gorm:"size:20" json:"tipo_id"`
	NumeroID           string       `gorm:"size:20;index" json:"numero_id"`
	Telefono           string       `gorm:"size:20;not null" json:"telefono"`
	Email              string       `gorm:"size:120" json:"email"`
	Ciudad             string       `gorm:"size:50" json:"ciudad"`
	MotivoConsulta     string       `gorm:"type:text" json:"motivo_consulta"`
	ConclusionAnalisis string       `gorm:"type:text" json:"conclusion_analisis"`
	Estado             ClientStatus `gorm:"type:varchar(50);default:'Nuevo';index" json:"estado"`
	// Unique when present; NULL rows do not collide.
	ContractNumber   *string    `gorm:"size:50;uniqueIndex" json:"contract_number"`
	AnalistaID       *uuid.UUID `gorm:"type:uuid;index" json:"analista_id"`
	AbogadoID        *uuid.UUID `gorm:"type:uuid;index" json:"abogado_id"`
	RadicadorID      *uuid.UUID `gorm:"type:uuid;index" json:"radicador_id"`
	LoginUserID      *uuid.UUID `gorm:"type:uuid" json:"login_user_id"`
	CreatedAt        time.Time  `json:"created_at"`
	LastStatusUpdate *time.Time `json:"last_status_update"`

	// Relations
	Obligations []FinancialObligation `gorm:"foreignKey:ClientID" json:"obligations,omitempty"`
	Documents   []Document            `gorm:"foreignKey:ClientID" json:"documents,omitempty"`
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// FinancialObligation is one external debt reported for a client.
type FinancialObligation struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	Entidad     string          `gorm:"size:100;not null" json:"entidad"`
	Estado      string          `gorm:"size:50;not null" json:"estado"` // 'Al día', 'Reportado', ...
	Valor       decimal.Decimal `gorm:"type:decimal(14,2)" json:"valor"`
	EstadoLegal LegalStatus     `gorm:"type:varchar(50);default:'Sin Iniciar'" json:"estado_legal"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (o *FinancialObligation) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// PaymentContract holds the agreed service contract for a client (1:1).
// NumeroCuotas is derived: it always equals the count of valid installments
// left after the last reconciliation, not the count the form asked for.
type PaymentContract struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"client_id"`
	ValorTotal   decimal.Decimal `gorm:"type:decimal(14,2)" json:"valor_total"`
	NumeroCuotas int             `json:"numero_cuotas"`

	Installments []ContractInstallment `gorm:"foreignKey:PaymentContractID" json:"installments,omitempty"`
}

func (p *PaymentContract) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ContractInstallment is one scheduled payment within a contract.
type ContractInstallment struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentContractID uuid.UUID         `gorm:"type:uuid;not null;index:idx_contract_cuota,unique" json:"payment_contract_id"`
	NumeroCuota       int               `gorm:"not null;index:idx_contract_cuota,unique" json:"numero_cuota"`
	Valor             decimal.Decimal   `gorm:"type:decimal(14,2)" json:"valor"`
	Concepto          string            `gorm:"size:200" json:"concepto"`
	FechaVencimiento  *time.Time        `gorm:"type:date" json:"fecha_vencimiento"`
	MetodoPago        string            `gorm:"size:50" json:"metodo_pago"`
	Estado            InstallmentStatus `gorm:"type:varchar(50);default:'Pendiente'" json:"estado"`
}

func (i *ContractInstallment) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// PaymentDiagnosis is the initial one-time evaluation fee for a client (1:1).
type PaymentDiagnosis struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"client_id"`
	Valor      decimal.Decimal `gorm:"type:decimal(14,2)" json:"valor"`
	FechaPago  *time.Time      `gorm:"type:date" json:"fecha_pago"`
	MetodoPago string          `gorm:"size:50" json:"metodo_pago"` // 'Nequi', 'Daviplata', ...
	Verificado bool            `gorm:"default:false" json:"verificado"`
}

func (d *PaymentDiagnosis) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Document is an uploaded file attached to a client, with independent
// visibility toggles for the analyst side and the client portal.
type Document struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID             uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	UploadedByID         uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by_id"`
	Filename             string    `gorm:"size:255;not null" json:"filename"`
	OriginalName         string    `gorm:"size:255" json:"original_name"`
	VisibleParaAnalista  bool      `gorm:"default:false" json:"visible_para_analista"`
	VisibleParaCliente   bool      `gorm:"default:false" json:"visible_para_cliente"`
	CreatedAt            time.Time `json:"created_at"`
}

func (d *Document) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// CaseMessage is one chat message on a client's case.
type CaseMessage struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID          uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	SenderID          uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	Timestamp         time.Time `gorm:"index" json:"timestamp"`
	IsReadByRecipient bool      `gorm:"default:false" json:"is_read_by_recipient"`
}

func (m *CaseMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// InteractionType classifies a scheduled contact with a client.
type InteractionType string

const (
	InteractionReunion  InteractionType = "Reunión Agendada"
	InteractionAsesoria InteractionType = "Asesoría Inicial"
	InteractionReporte  InteractionType = "Explicación Reporte"
)

// Interaction is a scheduled appointment between a client and a staff
// user (the assigned lawyer for booked meetings).
type Interaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"client_id"`
	UserID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	FechaHoraCita *time.Time      `json:"fecha_hora_cita"`
	Tipo          InteractionType `gorm:"type:varchar(50)" json:"tipo"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (i *Interaction) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// ClientNote is an internal staff note on a client.
type ClientNote struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null" json:"author_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *ClientNote) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// AllyPayment is a payment proof file uploaded by an ally.
type AllyPayment struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AllyID      uuid.UUID `gorm:"type:uuid;not null;index" json:"ally_id"`
	Filename    string    `gorm:"size:255;not null" json:"filename"`
	Observation string    `gorm:"type:text" json:"observation"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *AllyPayment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// AdministrativeExpense is one firm-level expense row for the balance report.
type AdministrativeExpense struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Descripcion string          `gorm:"size:200;not null" json:"descripcion"`
	Valor       decimal.Decimal `gorm:"type:decimal(14,2)" json:"valor"`
	Fecha       time.Time       `gorm:"type:date;index" json:"fecha"`
}

func (e *AdministrativeExpense) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// StatusHistory is an audit log entry for client lifecycle changes.
type StatusHistory struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"client_id"`
	ActorID   uuid.UUID    `gorm:"type:uuid;not null" json:"actor_id"`
	OldStatus ClientStatus `gorm:"type:varchar(50)" json:"old_status"`
	NewStatus ClientStatus `gorm:"type:varchar(50)" json:"new_status"`
	CreatedAt time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (h *StatusHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// All lists every entity in FK-safe migration order.
func All() []any {
	return []any{
		&User{}, &Client{}, &FinancialObligation{}, &PaymentContract{},
		&ContractInstallment{}, &PaymentDiagnosis{}, &Document{},
		&CaseMessage{}, &Interaction{}, &ClientNote{}, &AllyPayment{},
		&AdministrativeExpense{}, &StatusHistory{},
	}
}
