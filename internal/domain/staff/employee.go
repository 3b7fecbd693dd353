// Package staff holds employee records.
package staff

import (
	"time"

	"github.com/shopspring/decimal"
)

// Department is a closed set.
type Department string

const (
	DepartmentAdministration Department = "administration"
	DepartmentTeaching       Department = "teaching"
	DepartmentCoordination   Department = "coordination"
	DepartmentFinance        Department = "finance"
	DepartmentSupport        Department = "support"
	DepartmentMaintenance    Department = "maintenance"
)

// Departments lists every valid department.
func Departments() []Department {
	return []Department{
		DepartmentAdministration,
		DepartmentTeaching,
		DepartmentCoordination,
		DepartmentFinance,
		DepartmentSupport,
		DepartmentMaintenance,
	}
}

func (d Department) IsValid() bool {
	for _, v := range Departments() {
		if v == d {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusActive   Status = "active"
	StatusVacation Status = "vacation"
	StatusInactive Status = "inactive"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusVacation || s == StatusInactive
}

type ContractType string

const (
	ContractFullTime   ContractType = "full_time"
	ContractPartTime   ContractType = "part_time"
	ContractContractor ContractType = "contractor"
	ContractTemporary  ContractType = "temporary"
	ContractInternship ContractType = "internship"
)

// Salary is a base amount in an ISO 4217 currency.
type Salary struct {
	Base     decimal.Decimal `json:"base"`
	Currency string          `json:"currency"`
}

type Employee struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Role          string       `json:"role"`
	Department    Department   `json:"department"`
	Email         string       `json:"email"`
	Phone         string       `json:"phone"`
	Avatar        string       `json:"avatar"`
	ContractType  ContractType `json:"contractType"`
	AdmissionDate time.Time    `json:"admissionDate"`
	Status        Status       `json:"status"`
	Salary        Salary       `json:"salary"`
	Personal      PersonalInfo `json:"personal"`
	Bank          BankInfo     `json:"bank"`
}

type PersonalInfo struct {
	BirthDate  *time.Time `json:"birthDate,omitempty"`
	DocumentID string     `json:"documentId"`
	Address    string     `json:"address"`
	Education  string     `json:"education"`
}

type BankInfo struct {
	BankName      string `json:"bankName"`
	Branch        string `json:"branch"`
	AccountNumber string `json:"accountNumber"`
	AccountType   string `json:"accountType"`
	PixKey        string `json:"pixKey,omitempty"`
}

func (e Employee) Clone() Employee {
	c := e
	if e.Personal.BirthDate != nil {
		bd := *e.Personal.BirthDate
		c.Personal.BirthDate = &bd
	}
	return c
}
