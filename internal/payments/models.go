package payments

import (
	"time"

	"github.com/ariefcatur/go-order-settlement/internal/money"
)

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProcessing        Status = "PROCESSING"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

type Method string

const (
	MethodCreditCard   Method = "CREDIT_CARD"
	MethodDebitCard    Method = "DEBIT_CARD"
	MethodUPI          Method = "UPI"
	MethodNetBanking   Method = "NET_BANKING"
	MethodWallet       Method = "WALLET"
	MethodBankTransfer Method = "BANK_TRANSFER"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCreditCard, MethodDebitCard, MethodUPI, MethodNetBanking, MethodWallet, MethodBankTransfer:
		return true
	}
	return false
}

type Payment struct {
	ID                   int64        `json:"id"`
	PaymentReference     string       `json:"payment_reference"`
	OrderID              int64        `json:"order_id"`
	CustomerID           int64        `json:"customer_id"`
	BusinessID           int64        `json:"business_id"`
	Amount               money.Amount `json:"amount"`
	Currency             string       `json:"currency"`
	Method               Method       `json:"method"`
	Gateway              string       `json:"gateway"`
	GatewayCorrelationID string       `json:"gateway_correlation_id"`
	GatewayPaymentID     string       `json:"gateway_payment_id,omitempty"`
	Status               Status       `json:"status"`
	RefundedAmount       money.Amount `json:"refunded_amount"`
	Description          string       `json:"description,omitempty"`
	CustomerEmail        string       `json:"customer_email,omitempty"`
	CustomerPhone        string       `json:"customer_phone,omitempty"`
	FailureReason        string       `json:"failure_reason,omitempty"`
	RefundReason         string       `json:"refund_reason,omitempty"`
	PaidAt               *time.Time   `json:"paid_at,omitempty"`
	FailedAt             *time.Time   `json:"failed_at,omitempty"`
	RefundedAt           *time.Time   `json:"refunded_at,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func (p Payment) Remaining() money.Amount { return p.Amount - p.RefundedAmount }

type TxType string

const (
	TxPayment TxType = "PAYMENT"
	TxRefund  TxType = "REFUND"
)

type TxStatus string

const (
	TxInitiated TxStatus = "INITIATED"
	TxSuccess   TxStatus = "SUCCESS"
	TxFailed    TxStatus = "FAILED"
)

// Transaction is one append-only ledger row.
type Transaction struct {
	ID                   int64        `json:"id"`
	PaymentID            int64        `json:"payment_id"`
	Type                 TxType       `json:"type"`
	Status               TxStatus     `json:"status"`
	Amount               money.Amount `json:"amount"`
	GatewayTransactionID string       `json:"gateway_transaction_id,omitempty"`
	Description          string       `json:"description,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
}

type CreatePaymentInput struct {
	OrderID       int64        `json:"order_id"`
	Amount        money.Amount `json:"amount"`
	Method        Method       `json:"method"`
	Gateway       string       `json:"gateway,omitempty"`
	Description   string       `json:"description,omitempty"`
	CustomerEmail string       `json:"customer_email,omitempty"`
	CustomerPhone string       `json:"customer_phone,omitempty"`
}

type CreatePaymentResult struct {
	PaymentID          int64  `json:"payment_id"`
	PaymentReference   string `json:"payment_reference"`
	Status             Status `json:"status"`
	Gateway            string `json:"gateway"`
	GatewayClientToken string `json:"gateway_client_token"`
}

// OutcomeKind is a gateway-neutral settlement signal.
type OutcomeKind string

const (
	OutcomeSucceeded  OutcomeKind = "SUCCEEDED"
	OutcomeFailed     OutcomeKind = "FAILED"
	OutcomeCancelled  OutcomeKind = "CANCELLED"
	OutcomeProcessing OutcomeKind = "PROCESSING"
)

// Outcome is what a verified webhook tells us about one payment.
type Outcome struct {
	Gateway          string
	CorrelationID    string
	GatewayPaymentID string
	Kind             OutcomeKind
	RawStatus        string
	Reason           string
	// Amount is what the gateway reports; zero when the event carries none.
	Amount money.Amount
}

type SettleResult struct {
	Payment Payment
	Applied bool
}

type RefundInput struct {
	PaymentID int64
	Amount    *money.Amount
	Reason    string
}
