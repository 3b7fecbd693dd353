package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/internal/domain/calendar"
	"github.com/schoolhub/schoolhub/internal/domain/finance"
	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/internal/domain/staff"
	"github.com/schoolhub/schoolhub/internal/domain/student"
)

func TestStudentMapping(t *testing.T) {
	birth := time.Date(2012, 5, 3, 0, 0, 0, 0, time.UTC)
	s := student.Student{
		ID:              "s1",
		Name:            "Ana Souza",
		Email:           "ana@example.com",
		Avatar:          "https://cdn.example.com/a.png",
		EnrollmentID:    "ENR-2026-001",
		Grade:           "7",
		Class:           "7B",
		Status:          student.EnrollmentActive,
		FinancialStatus: student.FinancialLate,
		PaidMonths:      []string{"February", "January"},
		Personal:        student.PersonalInfo{BirthDate: &birth, DocumentID: "123", Phone: "555-0101"},
		Academic:        student.AcademicInfo{Shift: "morning", Subjects: []string{"math", "art"}},
		Guardian:        student.GuardianInfo{Name: "Carla", Relationship: "mother"},
		Health:          student.HealthInfo{BloodType: "O+", Allergies: []string{"peanuts"}},
	}

	row, err := studentToRow(s)
	require.NoError(t, err)
	assert.Equal(t, "ENR-2026-001", row.EnrollmentID)
	assert.Equal(t, "7B", row.ClassName)
	assert.Equal(t, "late", row.FinancialStatus)
	assert.JSONEq(t, `{"name":"Carla","relationship":"mother","phone":"","email":"","occupation":""}`, string(row.Guardian))

	back, err := rowToStudent(row)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestStudentMapping_EmptyJSONBAndNullArray(t *testing.T) {
	s, err := rowToStudent(studentRow{ID: "s2", Status: "active", FinancialStatus: "pending"})
	require.NoError(t, err)

	assert.NotNil(t, s.PaidMonths)
	assert.Empty(t, s.PaidMonths)
	assert.Equal(t, student.PersonalInfo{}, s.Personal)
}

func TestStudentMapping_BadJSONB(t *testing.T) {
	_, err := rowToStudent(studentRow{ID: "s3", Health: []byte(`{"allergies":`)})
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestTransactionMapping(t *testing.T) {
	tx := finance.Transaction{
		ID:            "t1",
		Date:          time.Date(2026, 3, 2, 14, 30, 0, 0, time.FixedZone("BRT", -3*3600)),
		Description:   "March tuition",
		Amount:        decimal.RequireFromString("1250.75"),
		Type:          finance.TypeIncome,
		Category:      "tuition",
		PaymentMethod: "pix",
		Status:        finance.StatusCompleted,
		Attachment:    &finance.Attachment{Name: "receipt.pdf", MimeType: "application/pdf", Data: []byte("%PDF-1.7")},
		StudentID:     "s1",
		PaidMonths:    []string{"March"},
	}

	row := transactionToRow(tx)
	assert.Equal(t, "1250.75", row.Amount)
	assert.Equal(t, time.UTC, row.OccurredAt.Location())
	require.NotNil(t, row.StudentID)
	assert.Equal(t, "s1", *row.StudentID)
	assert.Equal(t, tx.Attachment.Digest(), row.AttachmentDigest)

	back, corrupt, err := rowToTransaction(row)
	require.NoError(t, err)
	assert.False(t, corrupt)
	assert.True(t, tx.Date.Equal(back.Date))
	assert.True(t, tx.Amount.Equal(back.Amount))
	assert.Equal(t, tx.StudentID, back.StudentID)
	assert.Equal(t, tx.PaidMonths, back.PaidMonths)
	assert.Equal(t, tx.Attachment, back.Attachment)
}

func TestTransactionMapping_NoStudentNoAttachment(t *testing.T) {
	row := transactionToRow(finance.Transaction{
		ID:     "t2",
		Amount: decimal.NewFromInt(200),
		Type:   finance.TypeExpense,
		Status: finance.StatusPending,
	})
	assert.Nil(t, row.StudentID)
	assert.Nil(t, row.AttachmentName)

	back, corrupt, err := rowToTransaction(row)
	require.NoError(t, err)
	assert.False(t, corrupt)
	assert.Empty(t, back.StudentID)
	assert.Nil(t, back.Attachment)
}

func TestTransactionMapping_CorruptAttachmentDropped(t *testing.T) {
	row := transactionToRow(finance.Transaction{
		ID:         "t3",
		Amount:     decimal.NewFromInt(10),
		Attachment: &finance.Attachment{Name: "a.png", Data: []byte{1, 2, 3}},
	})
	row.AttachmentData = []byte{1, 2, 4}

	back, corrupt, err := rowToTransaction(row)
	require.NoError(t, err)
	assert.True(t, corrupt)
	assert.Nil(t, back.Attachment)
	assert.Equal(t, "t3", back.ID)
}

func TestTransactionMapping_BadAmount(t *testing.T) {
	_, _, err := rowToTransaction(transactionRow{ID: "t4", Amount: "12,50"})
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestEventMapping_AbsoluteInstants(t *testing.T) {
	local := time.FixedZone("UTC+5", 5*3600)
	e := calendar.Event{
		ID:    "ev1",
		Title: "Parents meeting",
		Start: time.Date(2026, 4, 10, 18, 0, 0, 0, local),
		End:   time.Date(2026, 4, 10, 20, 0, 0, 0, local),
	}

	row := eventToRow(e)
	assert.Equal(t, 13, row.StartsAt.Hour())

	back := rowToEvent(row)
	assert.True(t, e.Start.Equal(back.Start))
	assert.True(t, e.End.Equal(back.End))
	assert.Equal(t, e.Title, back.Title)
}

func TestEmployeeMapping(t *testing.T) {
	e := staff.Employee{
		ID:            "e1",
		Name:          "Rui Lima",
		Role:          "Math teacher",
		Department:    staff.DepartmentTeaching,
		ContractType:  staff.ContractFullTime,
		AdmissionDate: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:        staff.StatusActive,
		Salary:        staff.Salary{Base: decimal.RequireFromString("4800.50"), Currency: "BRL"},
		Personal:      staff.PersonalInfo{Education: "MSc"},
		Bank:          staff.BankInfo{BankName: "Banco", AccountNumber: "0001-2"},
	}

	row, err := employeeToRow(e)
	require.NoError(t, err)
	assert.Equal(t, "4800.5", row.SalaryBase)
	assert.Equal(t, "teaching", row.Department)

	back, err := rowToEmployee(row)
	require.NoError(t, err)
	assert.True(t, e.Salary.Base.Equal(back.Salary.Base))
	back.Salary.Base = e.Salary.Base
	assert.Equal(t, e, back)
}
