package models

// OrderStatus константы статусов заказов
const (
	OrderStatusDraft          = "draft"
	OrderStatusWaitingPayment = "waiting_payment"
	OrderStatusPaidEscrow     = "paid_escrow"
	OrderStatusInProgress     = "in_progress"
	OrderStatusDelivered      = "delivered"
	OrderStatusRevision       = "revision"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusDisputed       = "disputed"
)

// PaymentStatus нормализованные статусы платёжных сессий
const (
	PaymentStatusPending    = "pending"
	PaymentStatusSettlement = "settlement"
	PaymentStatusFailed     = "failed"
	PaymentStatusExpired    = "expired"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefund     = "refund"
)

// WithdrawalStatus константы статусов заявок на вывод
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusCancelled  = "cancelled"
	WithdrawalStatusFailed     = "failed"
)

// DisputeStatus константы статусов споров
const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

// DisputeResolution варианты решения спора
const (
	ResolutionReleaseToSeller = "release_to_seller"
	ResolutionRefundToBuyer   = "refund_to_buyer"
)

// EntryType типы записей в журнале кошелька
const (
	EntryTypeEscrowHold         = "escrow_hold"
	EntryTypeEscrowRelease      = "escrow_release"
	EntryTypeWithdrawal         = "withdrawal"
	EntryTypeWithdrawalReversal = "withdrawal_reversal"
	EntryTypeRefund             = "refund"
	EntryTypePlatformFee        = "platform_fee"
	EntryTypeAdjustment         = "adjustment"
	EntryTypeBonus              = "bonus"
	EntryTypePenalty            = "penalty"
)

// Роли пользователей
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// PaidOrderStatuses статусы, в которых заказ считается оплаченным.
var PaidOrderStatuses = map[string]struct{}{
	OrderStatusPaidEscrow: {},
	OrderStatusInProgress: {},
	OrderStatusDelivered:  {},
	OrderStatusRevision:   {},
	OrderStatusCompleted:  {},
	OrderStatusDisputed:   {},
}

// TerminalPaymentStatuses статусы платежа, после которых повторные уведомления игнорируются.
var TerminalPaymentStatuses = map[string]struct{}{
	PaymentStatusSettlement: {},
	PaymentStatusFailed:     {},
	PaymentStatusExpired:    {},
	PaymentStatusCancelled:  {},
	PaymentStatusRefund:     {},
}

// DisputableOrderStatuses статусы, из которых можно открыть спор.
var DisputableOrderStatuses = map[string]struct{}{
	OrderStatusInProgress: {},
	OrderStatusDelivered:  {},
	OrderStatusRevision:   {},
}

// CancellableOrderStatuses статусы, из которых допустима отмена заказа.
var CancellableOrderStatuses = map[string]struct{}{
	OrderStatusDraft:          {},
	OrderStatusWaitingPayment: {},
	OrderStatusPaidEscrow:     {},
}

// BalanceEntryTypes типы записей, меняющие доступный баланс кошелька.
// Записи escrow (hold/refund/fee) хранятся в журнале как маркеры
// обязательств по заказу и на доступный баланс не влияют.
var BalanceEntryTypes = map[string]struct{}{
	EntryTypeEscrowRelease:      {},
	EntryTypeWithdrawal:         {},
	EntryTypeWithdrawalReversal: {},
	EntryTypeAdjustment:         {},
	EntryTypeBonus:              {},
	EntryTypePenalty:            {},
}

// ValidResolutions список валидных решений спора.
var ValidResolutions = map[string]struct{}{
	ResolutionReleaseToSeller: {},
	ResolutionRefundToBuyer:   {},
}
