package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROW TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Row structs mirror the table columns one to one; pgx.RowToStructByName
// matches them by db tag. Money is carried as NUMERIC text and nested
// records as JSONB bytes.

type studentRow struct {
	ID              string   `db:"id"`
	Name            string   `db:"name"`
	Email           string   `db:"email"`
	Avatar          string   `db:"avatar"`
	EnrollmentID    string   `db:"enrollment_id"`
	Grade           string   `db:"grade"`
	ClassName       string   `db:"class_name"`
	Status          string   `db:"status"`
	FinancialStatus string   `db:"financial_status"`
	PaidMonths      []string `db:"paid_months"`
	Personal        []byte   `db:"personal"`
	Academic        []byte   `db:"academic"`
	Guardian        []byte   `db:"guardian"`
	Health          []byte   `db:"health"`
}

type transactionRow struct {
	ID                 string    `db:"id"`
	OccurredAt         time.Time `db:"occurred_at"`
	Description        string    `db:"description"`
	Amount             string    `db:"amount"`
	Type               string    `db:"tx_type"`
	Category           string    `db:"category"`
	PaymentMethod      string    `db:"payment_method"`
	Status             string    `db:"status"`
	AttachmentName     *string   `db:"attachment_name"`
	AttachmentMimeType *string   `db:"attachment_mime_type"`
	AttachmentData     []byte    `db:"attachment_data"`
	AttachmentDigest   []byte    `db:"attachment_digest"`
	StudentID          *string   `db:"student_id"`
	PaidMonths         []string  `db:"paid_months"`
}

type eventRow struct {
	ID          string    `db:"id"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	StartsAt    time.Time `db:"starts_at"`
	EndsAt      time.Time `db:"ends_at"`
	Category    string    `db:"category"`
	Location    string    `db:"location"`
}

type employeeRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Role           string    `db:"role"`
	Department     string    `db:"department"`
	Email          string    `db:"email"`
	Phone          string    `db:"phone"`
	Avatar         string    `db:"avatar"`
	ContractType   string    `db:"contract_type"`
	AdmissionDate  time.Time `db:"admission_date"`
	Status         string    `db:"status"`
	SalaryBase     string    `db:"salary_base"`
	SalaryCurrency string    `db:"salary_currency"`
	Personal       []byte    `db:"personal"`
	Bank           []byte    `db:"bank"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT
// ══════════════════════════════════════════════════════════════════════════════

func studentToRow(s student.Student) (studentRow, error) {
	row := studentRow{
		ID:              s.ID,
		Name:            s.Name,
		Email:           s.Email,
		Avatar:          s.Avatar,
		EnrollmentID:    s.EnrollmentID,
		Grade:           s.Grade,
		ClassName:       s.Class,
		Status:          string(s.Status),
		FinancialStatus: string(s.FinancialStatus),
		PaidMonths:      nonNil(s.PaidMonths),
	}
	var err error
	if row.Personal, err = marshalJSONB("personal", s.Personal); err != nil {
		return studentRow{}, err
	}
	if row.Academic, err = marshalJSONB("academic", s.Academic); err != nil {
		return studentRow{}, err
	}
	if row.Guardian, err = marshalJSONB("guardian", s.Guardian); err != nil {
		return studentRow{}, err
	}
	if row.Health, err = marshalJSONB("health", s.Health); err != nil {
		return studentRow{}, err
	}
	return row, nil
}

func rowToStudent(row studentRow) (student.Student, error) {
	s := student.Student{
		ID:              row.ID,
		Name:            row.Name,
		Email:           row.Email,
		Avatar:          row.Avatar,
		EnrollmentID:    row.EnrollmentID,
		Grade:           row.Grade,
		Class:           row.ClassName,
		Status:          student.EnrollmentStatus(row.Status),
		FinancialStatus: student.FinancialStatus(row.FinancialStatus),
		PaidMonths:      nonNil(row.PaidMonths),
	}
	if err := unmarshalJSONB("personal", row.Personal, &s.Personal); err != nil {
		return student.Student{}, err
	}
	if err := unmarshalJSONB("academic", row.Academic, &s.Academic); err != nil {
		return student.Student{}, err
	}
	if err := unmarshalJSONB("guardian", row.Guardian, &s.Guardian); err != nil {
		return student.Student{}, err
	}
	if err := unmarshalJSONB("health", row.Health, &s.Health); err != nil {
		return student.Student{}, err
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

func transactionToRow(t finance.Transaction) transactionRow {
	row := transactionRow{
		ID:            t.ID,
		OccurredAt:    t.Date.UTC(),
		Description:   t.Description,
		Amount:        t.Amount.String(),
		Type:          string(t.Type),
		Category:      t.Category,
		PaymentMethod: t.PaymentMethod,
		Status:        string(t.Status),
		StudentID:     optional(t.StudentID),
		PaidMonths:    nonNil(t.PaidMonths),
	}
	if a := t.Attachment; a != nil {
		row.AttachmentName = &a.Name
		row.AttachmentMimeType = &a.MimeType
		row.AttachmentData = nonNilBytes(a.Data)
		row.AttachmentDigest = a.Digest()
	}
	return row
}

// rowToTransaction rebuilds a transaction. An attachment whose bytes no
// longer match the stored digest is dropped and reported as corrupt; the
// transaction itself still loads.
func rowToTransaction(row transactionRow) (t finance.Transaction, corrupt bool, err error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return finance.Transaction{}, false, fmt.Errorf("%w: amount %q: %v", shared.ErrInvalidFormat, row.Amount, err)
	}

	t = finance.Transaction{
		ID:            row.ID,
		Date:          row.OccurredAt.UTC(),
		Description:   row.Description,
		Amount:        amount,
		Type:          finance.Type(row.Type),
		Category:      row.Category,
		PaymentMethod: row.PaymentMethod,
		Status:        finance.Status(row.Status),
		PaidMonths:    nonNil(row.PaidMonths),
	}
	if row.StudentID != nil {
		t.StudentID = *row.StudentID
	}

	if row.AttachmentName != nil {
		a := finance.Attachment{
			Name: *row.AttachmentName,
			Data: nonNilBytes(row.AttachmentData),
		}
		if row.AttachmentMimeType != nil {
			a.MimeType = *row.AttachmentMimeType
		}
		if a.Verify(row.AttachmentDigest) {
			t.Attachment = &a
		} else {
			corrupt = true
		}
	}
	return t, corrupt, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR EVENT
// ══════════════════════════════════════════════════════════════════════════════

func eventToRow(e calendar.Event) eventRow {
	return eventRow{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		StartsAt:    e.Start.UTC(),
		EndsAt:      e.End.UTC(),
		Category:    e.Category,
		Location:    e.Location,
	}
}

func rowToEvent(row eventRow) calendar.Event {
	return calendar.Event{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Start:       row.StartsAt.UTC(),
		End:         row.EndsAt.UTC(),
		Category:    row.Category,
		Location:    row.Location,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EMPLOYEE
// ══════════════════════════════════════════════════════════════════════════════

func employeeToRow(e staff.Employee) (employeeRow, error) {
	row := employeeRow{
		ID:             e.ID,
		Name:           e.Name,
		Role:           e.Role,
		Department:     string(e.Department),
		Email:          e.Email,
		Phone:          e.Phone,
		Avatar:         e.Avatar,
		ContractType:   string(e.ContractType),
		AdmissionDate:  e.AdmissionDate.UTC(),
		Status:         string(e.Status),
		SalaryBase:     e.Salary.Base.String(),
		SalaryCurrency: e.Salary.Currency,
	}
	var err error
	if row.Personal, err = marshalJSONB("personal", e.Personal); err != nil {
		return employeeRow{}, err
	}
	if row.Bank, err = marshalJSONB("bank", e.Bank); err != nil {
		return employeeRow{}, err
	}
	return row, nil
}

func rowToEmployee(row employeeRow) (staff.Employee, error) {
	base, err := decimal.NewFromString(row.SalaryBase)
	if err != nil {
		return staff.Employee{}, fmt.Errorf("%w: salary %q: %v", shared.ErrInvalidFormat, row.SalaryBase, err)
	}

	e := staff.Employee{
		ID:            row.ID,
		Name:          row.Name,
		Role:          row.Role,
		Department:    staff.Department(row.Department),
		Email:         row.Email,
		Phone:         row.Phone,
		Avatar:        row.Avatar,
		ContractType:  staff.ContractType(row.ContractType),
		AdmissionDate: row.AdmissionDate.UTC(),
		Status:        staff.Status(row.Status),
		Salary:        staff.Salary{Base: base, Currency: row.SalaryCurrency},
	}
	if err := unmarshalJSONB("personal", row.Personal, &e.Personal); err != nil {
		return staff.Employee{}, err
	}
	if err := unmarshalJSONB("bank", row.Bank, &e.Bank); err != nil {
		return staff.Employee{}, err
	}
	return e, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func marshalJSONB(column string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", column, err)
	}
	return b, nil
}

func unmarshalJSONB(column string, b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrInvalidFormat, column, err)
	}
	return nil
}

// nonNil maps NULL and empty arrays to an empty slice so both spellings
// load the same.
func nonNil(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func nonNilBytes(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
