// Package finance holds tuition and expense transactions.
package finance

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Type tells income from expense. Amount is always stored positive.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

func (t Type) IsValid() bool { return t == TypeIncome || t == TypeExpense }

// Status of a transaction. Only completed transactions count towards KPIs.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCompleted, StatusPending, StatusCancelled:
		return true
	}
	return false
}

// Transaction is one financial movement.
type Transaction struct {
	ID            string          `json:"id"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          Type            `json:"type"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        Status          `json:"status"`
	Attachment    *Attachment     `json:"attachment,omitempty"`

	// StudentID is a weak reference; the student may not exist.
	StudentID string `json:"studentId,omitempty"`

	// PaidMonths lists the billing periods this transaction pays for.
	PaidMonths []string `json:"paidMonths,omitempty"`
}

// IsTuitionPayment reports whether the transaction should be reconciled
// onto a student's paid periods.
func (t Transaction) IsTuitionPayment() bool {
	return t.Type == TypeIncome && t.StudentID != "" && len(t.PaidMonths) > 0
}

// Counts reports whether the transaction contributes to revenue/expense totals.
func (t Transaction) Counts() bool {
	return t.Status == StatusCompleted
}

func (t Transaction) Clone() Transaction {
	c := t
	if t.PaidMonths != nil {
		c.PaidMonths = append([]string(nil), t.PaidMonths...)
	}
	if t.Attachment != nil {
		a := t.Attachment.Clone()
		c.Attachment = &a
	}
	return c
}

// Attachment is a receipt or document carried inline with the transaction.
// Data is the raw blob; JSON encodes it as base64.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

// Digest is the BLAKE2b-256 hash of Data.
func (a Attachment) Digest() []byte {
	sum := blake2b.Sum256(a.Data)
	return sum[:]
}

// Verify reports whether digest matches Data.
func (a Attachment) Verify(digest []byte) bool {
	return bytes.Equal(a.Digest(), digest)
}

func (a Attachment) Clone() Attachment {
	c := a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return c
}
