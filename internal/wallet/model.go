package wallet

import (
	"time"
)

type WalletStatus string

const (
	WalletActive   WalletStatus = "ACTIVE"
	WalletBlocked  WalletStatus = "BLOCKED"
	WalletInactive WalletStatus = "INACTIVE"
)

func (s WalletStatus) Valid() bool {
	switch s {
	case WalletActive, WalletBlocked, WalletInactive:
		return true
	}
	return false
}

// Wallet holds a cached balance projection over the transaction log. Balance
// and Version are mutated only through the CAS in Store.ApplyTransaction;
// replaying COMPLETED deltas from zero always re-derives Balance.
type Wallet struct {
	ID                string       `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID           string       `gorm:"type:uuid;not null;uniqueIndex:idx_owner_currency" json:"owner_id"`
	Currency          string       `gorm:"not null;default:INR;uniqueIndex:idx_owner_currency" json:"currency"`
	Balance           int64        `gorm:"not null;default:0" json:"balance"`
	Status            WalletStatus `gorm:"not null;default:ACTIVE" json:"status"`
	Version           int64        `gorm:"not null;default:0" json:"version"`
	AllowOverdraft    bool         `gorm:"not null;default:false" json:"allow_overdraft"`
	LastTransactionAt *time.Time   `json:"last_transaction_at,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

type TransactionType string

const (
	TypeCredit TransactionType = "CREDIT"
	TypeDebit  TransactionType = "DEBIT"
)

func (t TransactionType) Valid() bool {
	return t == TypeCredit || t == TypeDebit
}

// Inverse is the type of a compensating entry.
func (t TransactionType) Inverse() TransactionType {
	if t == TypeCredit {
		return TypeDebit
	}
	return TypeCredit
}

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusRolledBack TransactionStatus = "ROLLED_BACK"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusRolledBack:
		return true
	}
	return false
}

// Terminal statuses are immutable except for audit fields.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRolledBack
}

// CanTransition encodes the full lifecycle:
// PENDING -> COMPLETED | FAILED, COMPLETED -> ROLLED_BACK.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	switch s {
	case StatusPending:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted:
		return to == StatusRolledBack
	}
	return false
}

type ReferenceType string

const (
	RefOrder           ReferenceType = "ORDER"
	RefRefund          ReferenceType = "REFUND"
	RefPaymentGateway  ReferenceType = "PAYMENT_GATEWAY"
	RefAdminAdjustment ReferenceType = "ADMIN_ADJUSTMENT"
	RefWithdrawal      ReferenceType = "WITHDRAWAL"
)

func (r ReferenceType) Valid() bool {
	switch r {
	case RefOrder, RefRefund, RefPaymentGateway, RefAdminAdjustment, RefWithdrawal:
		return true
	}
	return false
}

type Actor string

const (
	ActorUser   Actor = "USER"
	ActorAdmin  Actor = "ADMIN"
	ActorSystem Actor = "SYSTEM"
)

// Transaction is an append-only ledger entry. Amount is always positive;
// the sign of the balance delta comes from Type. The ID doubles as the
// caller-supplied idempotency key, GatewayReference as the gateway's.
type Transaction struct {
	ID               string            `gorm:"type:uuid;primaryKey" json:"id"`
	WalletID         string            `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Type             TransactionType   `gorm:"not null" json:"type"`
	Amount           int64             `gorm:"not null" json:"amount"`
	Currency         string            `gorm:"not null" json:"currency"`
	Status           TransactionStatus `gorm:"not null;index" json:"status"`
	ReferenceType    ReferenceType     `gorm:"not null" json:"reference_type"`
	ReferenceID      string            `json:"reference_id"`
	InitiatedBy      Actor             `gorm:"not null" json:"initiated_by"`
	GatewayReference *string           `gorm:"uniqueIndex" json:"gateway_reference,omitempty"`
	Description      string            `json:"description,omitempty"`
	AdjustedByAdmin  string            `json:"adjusted_by_admin,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// Delta is the signed balance effect of this transaction.
func (t *Transaction) Delta() int64 {
	if t.Type == TypeDebit {
		return -t.Amount
	}
	return t.Amount
}

type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortAmount    SortField = "amount"
	SortStatus    SortField = "status"
	SortType      SortField = "transaction_type"
)

func (s SortField) Valid() bool {
	switch s {
	case SortCreatedAt, SortAmount, SortStatus, SortType:
		return true
	}
	return false
}

// Column maps the API sort key to the storage column.
func (s SortField) Column() string {
	switch s {
	case SortAmount:
		return "amount"
	case SortStatus:
		return "status"
	case SortType:
		return "type"
	default:
		return "created_at"
	}
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	Type          TransactionType
	Status        TransactionStatus
	ReferenceType ReferenceType
	From          *time.Time
	To            *time.Time
	SortBy        SortField
	SortDesc      bool
	Limit         int
	Offset        int
}

// WalletFilter narrows the admin cross-user wallet query.
type WalletFilter struct {
	Status     WalletStatus
	Currency   string
	OwnerID    string
	MinBalance *int64
	MaxBalance *int64
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
