package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/persistence"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

var (
	_ persistence.Collection[student.Student]     = (*StudentRepository)(nil)
	_ persistence.Collection[finance.Transaction] = (*TransactionRepository)(nil)
	_ persistence.Deletable[calendar.Event]       = (*EventRepository)(nil)
	_ persistence.Collection[staff.Employee]      = (*EmployeeRepository)(nil)
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARED
// ══════════════════════════════════════════════════════════════════════════════

// insert maps constraint violations onto domain error kinds.
func insert(ctx context.Context, q Querier, collection, id, query string, args ...any) error {
	if _, err := q.Exec(ctx, query, args...); err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.AlreadyExists(collection, "Insert", id)
		case IsCheckViolation(err):
			return shared.WrapError(collection, "Insert", shared.ErrValidation, "row rejected by constraint", err)
		}
		return fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return nil
}

// modify runs an UPDATE or DELETE and reports an unknown id as not found.
func modify(ctx context.Context, q Querier, collection, op, id, query string, args ...any) error {
	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		if IsCheckViolation(err) {
			return shared.WrapError(collection, op, shared.ErrValidation, "row rejected by constraint", err)
		}
		return fmt.Errorf("failed to %s %s: %w", op, collection, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(collection, op, id)
	}
	return nil
}

// loadRows reads every row of a table oldest first.
func loadRows[R any](ctx context.Context, q Querier, collection, query string) ([]R, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[R])
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const studentColumns = `id, name, email, avatar, enrollment_id, grade, class_name,
	status, financial_status, paid_months, personal, academic, guardian, health`

// StudentRepository stores students in the students table.
type StudentRepository struct {
	conn Querier
}

func NewStudentRepository(conn Querier) *StudentRepository {
	return &StudentRepository{conn: conn}
}

func (r *StudentRepository) LoadAll(ctx context.Context) ([]student.Student, error) {
	rows, err := loadRows[studentRow](ctx, r.conn, persistence.CollectionStudents,
		`SELECT `+studentColumns+` FROM students ORDER BY seq`)
	if err != nil {
		return nil, err
	}

	out := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		s, err := rowToStudent(row)
		if err != nil {
			return nil, fmt.Errorf("student %s: %w", row.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *StudentRepository) Insert(ctx context.Context, s student.Student) error {
	row, err := studentToRow(s)
	if err != nil {
		return err
	}
	return insert(ctx, r.conn, persistence.CollectionStudents, s.ID, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		row.ID, row.Name, row.Email, row.Avatar, row.EnrollmentID, row.Grade, row.ClassName,
		row.Status, row.FinancialStatus, row.PaidMonths,
		row.Personal, row.Academic, row.Guardian, row.Health,
	)
}

func (r *StudentRepository) Update(ctx context.Context, s student.Student) error {
	row, err := studentToRow(s)
	if err != nil {
		return err
	}
	return modify(ctx, r.conn, persistence.CollectionStudents, "Update", s.ID, `
		UPDATE students SET
			name = $2,
			email = $3,
			avatar = $4,
			enrollment_id = $5,
			grade = $6,
			class_name = $7,
			status = $8,
			financial_status = $9,
			paid_months = $10,
			personal = $11,
			academic = $12,
			guardian = $13,
			health = $14,
			updated_at = NOW()
		WHERE id = $1
	`,
		row.ID, row.Name, row.Email, row.Avatar, row.EnrollmentID, row.Grade, row.ClassName,
		row.Status, row.FinancialStatus, row.PaidMonths,
		row.Personal, row.Academic, row.Guardian, row.Health,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

// amount is read back as text so decimal parsing sees the exact value.
const transactionSelect = `SELECT id, occurred_at, description, amount::text AS amount, tx_type,
	category, payment_method, status, attachment_name, attachment_mime_type,
	attachment_data, attachment_digest, student_id, paid_months
	FROM transactions ORDER BY seq`

// TransactionRepository stores transactions and their inline attachments.
type TransactionRepository struct {
	conn Querier
	log  *logger.Logger
}

func NewTransactionRepository(conn Querier, log *logger.Logger) *TransactionRepository {
	return &TransactionRepository{conn: conn, log: log}
}

// LoadAll drops attachments that fail their digest check and keeps the
// transaction.
func (r *TransactionRepository) LoadAll(ctx context.Context) ([]finance.Transaction, error) {
	rows, err := loadRows[transactionRow](ctx, r.conn, persistence.CollectionTransactions, transactionSelect)
	if err != nil {
		return nil, err
	}

	out := make([]finance.Transaction, 0, len(rows))
	for _, row := range rows {
		t, corrupt, err := rowToTransaction(row)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: %w", row.ID, err)
		}
		if corrupt {
			r.log.Warn("attachment digest mismatch; attachment dropped", logger.TransactionID(row.ID))
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *TransactionRepository) Insert(ctx context.Context, t finance.Transaction) error {
	row := transactionToRow(t)
	// $4 is bound as text and cast so the decimal string is never rounded
	// through a float.
	return insert(ctx, r.conn, persistence.CollectionTransactions, t.ID, `
		INSERT INTO transactions (
			id, occurred_at, description, amount, tx_type, category, payment_method, status,
			attachment_name, attachment_mime_type, attachment_data, attachment_digest,
			student_id, paid_months
		) VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		row.ID, row.OccurredAt, row.Description, row.Amount, row.Type, row.Category,
		row.PaymentMethod, row.Status,
		row.AttachmentName, row.AttachmentMimeType, row.AttachmentData, row.AttachmentDigest,
		row.StudentID, row.PaidMonths,
	)
}

func (r *TransactionRepository) Update(ctx context.Context, t finance.Transaction) error {
	row := transactionToRow(t)
	return modify(ctx, r.conn, persistence.CollectionTransactions, "Update", t.ID, `
		UPDATE transactions SET
			occurred_at = $2,
			description = $3,
			amount = $4::text::numeric,
			tx_type = $5,
			category = $6,
			payment_method = $7,
			status = $8,
			attachment_name = $9,
			attachment_mime_type = $10,
			attachment_data = $11,
			attachment_digest = $12,
			student_id = $13,
			paid_months = $14,
			updated_at = NOW()
		WHERE id = $1
	`,
		row.ID, row.OccurredAt, row.Description, row.Amount, row.Type, row.Category,
		row.PaymentMethod, row.Status,
		row.AttachmentName, row.AttachmentMimeType, row.AttachmentData, row.AttachmentDigest,
		row.StudentID, row.PaidMonths,
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// EventRepository stores calendar events with TIMESTAMPTZ instants.
type EventRepository struct {
	conn Querier
}

func NewEventRepository(conn Querier) *EventRepository {
	return &EventRepository{conn: conn}
}

func (r *EventRepository) LoadAll(ctx context.Context) ([]calendar.Event, error) {
	rows, err := loadRows[eventRow](ctx, r.conn, persistence.CollectionEvents, `
		SELECT id, title, description, starts_at, ends_at, category, location
		FROM events ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}

	out := make([]calendar.Event, len(rows))
	for i, row := range rows {
		out[i] = rowToEvent(row)
	}
	return out, nil
}

func (r *EventRepository) Insert(ctx context.Context, e calendar.Event) error {
	row := eventToRow(e)
	return insert(ctx, r.conn, persistence.CollectionEvents, e.ID, `
		INSERT INTO events (id, title, description, starts_at, ends_at, category, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, row.ID, row.Title, row.Description, row.StartsAt, row.EndsAt, row.Category, row.Location)
}

func (r *EventRepository) Update(ctx context.Context, e calendar.Event) error {
	row := eventToRow(e)
	return modify(ctx, r.conn, persistence.CollectionEvents, "Update", e.ID, `
		UPDATE events SET
			title = $2,
			description = $3,
			starts_at = $4,
			ends_at = $5,
			category = $6,
			location = $7,
			updated_at = NOW()
		WHERE id = $1
	`, row.ID, row.Title, row.Description, row.StartsAt, row.EndsAt, row.Category, row.Location)
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	return modify(ctx, r.conn, persistence.CollectionEvents, "Delete", id,
		`DELETE FROM events WHERE id = $1`, id)
}

// ══════════════════════════════════════════════════════════════════════════════
// EMPLOYEES
// ══════════════════════════════════════════════════════════════════════════════

const employeeSelect = `SELECT id, name, role, department, email, phone, avatar, contract_type,
	admission_date, status, salary_base::text AS salary_base, salary_currency, personal, bank
	FROM employees ORDER BY seq`

// EmployeeRepository stores staff records.
type EmployeeRepository struct {
	conn Querier
}

func NewEmployeeRepository(conn Querier) *EmployeeRepository {
	return &EmployeeRepository{conn: conn}
}

func (r *EmployeeRepository) LoadAll(ctx context.Context) ([]staff.Employee, error) {
	rows, err := loadRows[employeeRow](ctx, r.conn, persistence.CollectionEmployees, employeeSelect)
	if err != nil {
		return nil, err
	}

	out := make([]staff.Employee, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEmployee(row)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", row.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *EmployeeRepository) Insert(ctx context.Context, e staff.Employee) error {
	row, err := employeeToRow(e)
	if err != nil {
		return err
	}
	return insert(ctx, r.conn, persistence.CollectionEmployees, e.ID, `
		INSERT INTO employees (
			id, name, role, department, email, phone, avatar, contract_type,
			admission_date, status, salary_base, salary_currency, personal, bank
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::text::numeric, $12, $13, $14)
	`,
		row.ID, row.Name, row.Role, row.Department, row.Email, row.Phone, row.Avatar,
		row.ContractType, row.AdmissionDate, row.Status, row.SalaryBase, row.SalaryCurrency,
		row.Personal, row.Bank,
	)
}

func (r *EmployeeRepository) Update(ctx context.Context, e staff.Employee) error {
	row, err := employeeToRow(e)
	if err != nil {
		return err
	}
	return modify(ctx, r.conn, persistence.CollectionEmployees, "Update", e.ID, `
		UPDATE employees SET
			name = $2,
			role = $3,
			department = $4,
			email = $5,
			phone = $6,
			avatar = $7,
			contract_type = $8,
			admission_date = $9,
			status = $10,
			salary_base = $11::text::numeric,
			salary_currency = $12,
			personal = $13,
			bank = $14,
			updated_at = NOW()
		WHERE id = $1
	`,
		row.ID, row.Name, row.Role, row.Department, row.Email, row.Phone, row.Avatar,
		row.ContractType, row.AdmissionDate, row.Status, row.SalaryBase, row.SalaryCurrency,
		row.Personal, row.Bank,
	)
}
