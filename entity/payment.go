package entity

import "time"

// PaymentStatus is the state of a gateway transaction as seen from a poll.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// Terminal reports whether the status ends reconciliation.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentCancelled || s == PaymentFailed
}

// PendingPayment carries the details of a payment being initiated. It lives
// only in session data plus the poll handle until the gateway resolves it.
type PendingPayment struct {
	Name         string
	Amount       float64
	Currency     string
	Method       string
	PayerPhone   string
	BillNumber   string
	Purpose      string
	Congregation string
	Note         string
	Reference    string
}

// PaymentRecord is an entry in the append-only payment ledger, written
// exactly once when a pending payment reconciles to paid.
type PaymentRecord struct {
	Reference    string    `json:"reference" bson:"reference"`
	Name         string    `json:"name" bson:"name"`
	Amount       float64   `json:"amount" bson:"amount"`
	Currency     string    `json:"currency" bson:"currency"`
	Congregation string    `json:"congregation" bson:"congregation"`
	Purpose      string    `json:"purpose" bson:"purpose"`
	Method       string    `json:"method" bson:"method"`
	Note         string    `json:"note" bson:"note"`
	Phone        string    `json:"phone" bson:"phone"`
	PaidAt       time.Time `json:"paid_at" bson:"paid_at"`
}

// Record converts a resolved pending payment into a ledger record.
func (p *PendingPayment) Record(paidAt time.Time) PaymentRecord {
	return PaymentRecord{
		Reference:    p.Reference,
		Name:         p.Name,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Congregation: p.Congregation,
		Purpose:      p.Purpose,
		Method:       p.Method,
		Note:         p.Note,
		Phone:        p.PayerPhone,
		PaidAt:       paidAt,
	}
}
