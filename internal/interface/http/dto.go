package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// report fields by their JSON name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	// lets gte/gt work on money
	v.RegisterCustomTypeFunc(func(f reflect.Value) any {
		d, ok := f.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		return d.InexactFloat64()
	}, decimal.Decimal{})

	return v
}

// errBadBody marks a request body that is not the JSON we expect.
var errBadBody = errors.New("malformed request body")

// decodeAndValidate reads the JSON body into dst and runs struct validation.
func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", errBadBody)
	}
	return validate.Struct(dst)
}

// validationFields flattens validator errors to field -> failed tag.
func validationFields(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		key := fe.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		tag := fe.Tag()
		if fe.Param() != "" {
			tag += "=" + fe.Param()
		}
		fields[key] = tag
	}
	return fields
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRequest is the body of POST and PUT /students. A financialStatus in
// the body is ignored: it is always derived from paidMonths.
type StudentRequest struct {
	ID           string                   `json:"id" validate:"omitempty,max=64"`
	Name         string                   `json:"name" validate:"required,max=200"`
	Email        string                   `json:"email" validate:"omitempty,email"`
	Avatar       string                   `json:"avatar" validate:"omitempty,max=2048"`
	EnrollmentID string                   `json:"enrollmentId" validate:"max=64"`
	Grade        string                   `json:"grade" validate:"max=64"`
	Class        string                   `json:"class" validate:"max=64"`
	Status       student.EnrollmentStatus `json:"status" validate:"omitempty,oneof=active suspended transferred"`
	PaidMonths   []string                 `json:"paidMonths" validate:"omitempty,dive,required"`

	Personal student.PersonalInfo `json:"personal"`
	Academic student.AcademicInfo `json:"academic"`
	Guardian student.GuardianInfo `json:"guardian"`
	Health   student.HealthInfo   `json:"health"`
}

func (req StudentRequest) toDomain() student.Student {
	status := req.Status
	if status == "" {
		status = student.EnrollmentActive
	}
	return student.Student{
		ID:           req.ID,
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		Avatar:       req.Avatar,
		EnrollmentID: req.EnrollmentID,
		Grade:        req.Grade,
		Class:        req.Class,
		Status:       status,
		PaidMonths:   req.PaidMonths,
		Personal:     req.Personal,
		Academic:     req.Academic,
		Guardian:     req.Guardian,
		Health:       req.Health,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTIONS
// ══════════════════════════════════════════════════════════════════════════════

type AttachmentRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	MimeType string `json:"mimeType" validate:"required"`
	// Data is base64 in JSON.
	Data []byte `json:"data" validate:"required"`
}

// TransactionRequest is the body of POST /transactions. A zero date means now.
type TransactionRequest struct {
	ID            string             `json:"id" validate:"omitempty,max=64"`
	Date          time.Time          `json:"date"`
	Description   string             `json:"description" validate:"required,max=500"`
	Amount        decimal.Decimal    `json:"amount" validate:"gte=0"`
	Type          finance.Type       `json:"type" validate:"required,oneof=income expense"`
	Category      string             `json:"category" validate:"max=100"`
	PaymentMethod string             `json:"paymentMethod" validate:"max=100"`
	Status        finance.Status     `json:"status" validate:"required,oneof=completed pending cancelled"`
	Attachment    *AttachmentRequest `json:"attachment"`
	StudentID     string             `json:"studentId" validate:"max=64"`
	PaidMonths    []string           `json:"paidMonths" validate:"omitempty,dive,required"`
}

func (req TransactionRequest) toDomain(now time.Time) finance.Transaction {
	date := req.Date
	if date.IsZero() {
		date = now
	}
	t := finance.Transaction{
		ID:            req.ID,
		Date:          date.UTC(),
		Description:   strings.TrimSpace(req.Description),
		Amount:        req.Amount,
		Type:          req.Type,
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
		Status:        req.Status,
		StudentID:     req.StudentID,
		PaidMonths:    req.PaidMonths,
	}
	if req.Attachment != nil {
		t.Attachment = &finance.Attachment{
			Name:     req.Attachment.Name,
			MimeType: req.Attachment.MimeType,
			Data:     req.Attachment.Data,
		}
	}
	return t
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// EventRequest is the body of POST and PUT /events.
type EventRequest struct {
	ID          string    `json:"id" validate:"omitempty,max=64"`
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtefield=Start"`
	Category    string    `json:"category" validate:"max=100"`
	Location    string    `json:"location" validate:"max=200"`
}

func (req EventRequest) toDomain() calendar.Event {
	return calendar.Event{
		ID:          req.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Start:       req.Start.UTC(),
		End:         req.End.UTC(),
		Category:    req.Category,
		Location:    req.Location,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EMPLOYEES
// ══════════════════════════════════════════════════════════════════════════════

type SalaryRequest struct {
	Base     decimal.Decimal `json:"base" validate:"gte=0"`
	Currency string          `json:"currency" validate:"omitempty,iso4217"`
}

// EmployeeRequest is the body of POST and PUT /employees.
type EmployeeRequest struct {
	ID            string             `json:"id" validate:"omitempty,max=64"`
	Name          string             `json:"name" validate:"required,max=200"`
	Role          string             `json:"role" validate:"required,max=100"`
	Department    staff.Department   `json:"department" validate:"required,oneof=administration teaching coordination finance support maintenance"`
	Email         string             `json:"email" validate:"omitempty,email"`
	Phone         string             `json:"phone" validate:"max=32"`
	Avatar        string             `json:"avatar" validate:"omitempty,max=2048"`
	ContractType  staff.ContractType `json:"contractType" validate:"omitempty,oneof=full_time part_time contractor temporary internship"`
	AdmissionDate time.Time          `json:"admissionDate"`
	Status        staff.Status       `json:"status" validate:"omitempty,oneof=active vacation inactive"`
	Salary        SalaryRequest      `json:"salary"`
	Personal      staff.PersonalInfo `json:"personal"`
	Bank          staff.BankInfo     `json:"bank"`
}

func (req EmployeeRequest) toDomain() staff.Employee {
	status := req.Status
	if status == "" {
		status = staff.StatusActive
	}
	return staff.Employee{
		ID:            req.ID,
		Name:          strings.TrimSpace(req.Name),
		Role:          req.Role,
		Department:    req.Department,
		Email:         req.Email,
		Phone:         req.Phone,
		Avatar:        req.Avatar,
		ContractType:  req.ContractType,
		AdmissionDate: req.AdmissionDate.UTC(),
		Status:        status,
		Salary:        staff.Salary{Base: req.Salary.Base, Currency: strings.ToUpper(req.Salary.Currency)},
		Personal:      req.Personal,
		Bank:          req.Bank,
	}
}
