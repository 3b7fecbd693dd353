// Package student holds the enrollment record of a pupil.
package student

import "time"

// EnrollmentStatus is where the student stands with the school.
type EnrollmentStatus string

const (
	EnrollmentActive      EnrollmentStatus = "active"
	EnrollmentSuspended   EnrollmentStatus = "suspended"
	EnrollmentTransferred EnrollmentStatus = "transferred"
)

func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case EnrollmentActive, EnrollmentSuspended, EnrollmentTransferred:
		return true
	}
	return false
}

// FinancialStatus is derived from PaidMonths by the billing classifier.
type FinancialStatus string

const (
	FinancialPending FinancialStatus = "pending"
	FinancialPaid    FinancialStatus = "paid"
	FinancialLate    FinancialStatus = "late"
)

func (s FinancialStatus) IsValid() bool {
	switch s {
	case FinancialPending, FinancialPaid, FinancialLate:
		return true
	}
	return false
}

// Student is one enrollment record.
//
// FinancialStatus is a materialized view of PaidMonths. Callers never set it;
// the store recomputes it every time PaidMonths can change.
type Student struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Avatar       string `json:"avatar"`
	EnrollmentID string `json:"enrollmentId"`
	Grade        string `json:"grade"`
	Class        string `json:"class"`

	Status          EnrollmentStatus `json:"status"`
	FinancialStatus FinancialStatus  `json:"financialStatus"`

	// PaidMonths is a set of billing period identifiers; order carries no meaning.
	PaidMonths []string `json:"paidMonths"`

	Personal PersonalInfo `json:"personal"`
	Academic AcademicInfo `json:"academic"`
	Guardian GuardianInfo `json:"guardian"`
	Health   HealthInfo   `json:"health"`
}

type PersonalInfo struct {
	BirthDate   *time.Time `json:"birthDate,omitempty"`
	DocumentID  string     `json:"documentId"`
	Gender      string     `json:"gender"`
	Nationality string     `json:"nationality"`
	Address     string     `json:"address"`
	Phone       string     `json:"phone"`
}

type AcademicInfo struct {
	PreviousSchool string   `json:"previousSchool"`
	Shift          string   `json:"shift"`
	EnrolledAt     string   `json:"enrolledAt"`
	Notes          string   `json:"notes"`
	Subjects       []string `json:"subjects,omitempty"`
}

type GuardianInfo struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Occupation   string `json:"occupation"`
}

type HealthInfo struct {
	BloodType        string   `json:"bloodType"`
	Allergies        []string `json:"allergies,omitempty"`
	Medications      []string `json:"medications,omitempty"`
	EmergencyContact string   `json:"emergencyContact"`
	Notes            string   `json:"notes"`
}

// Clone returns a deep copy so store readers cannot alias internal slices.
func (s Student) Clone() Student {
	c := s
	c.PaidMonths = cloneStrings(s.PaidMonths)
	c.Academic.Subjects = cloneStrings(s.Academic.Subjects)
	c.Health.Allergies = cloneStrings(s.Health.Allergies)
	c.Health.Medications = cloneStrings(s.Health.Medications)
	if s.Personal.BirthDate != nil {
		bd := *s.Personal.BirthDate
		c.Personal.BirthDate = &bd
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
