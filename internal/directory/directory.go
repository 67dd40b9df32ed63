// Package directory resolves employee numbers to employee records, either from
// a static roster or from a live Graph-style user directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotFound = errors.New("employee not found in directory")

type Employee struct {
	ID             string `json:"id"`
	EmployeeNumber string `json:"employeeNumber"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	CompanyName    string `json:"companyName,omitempty"`
	Department     string `json:"department,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
}

type Resolver interface {
	ResolveEmployee(ctx context.Context, employeeNumber string) (Employee, error)
}

// Static serves lookups from an in-memory roster.
type Static struct {
	byNumber map[string]Employee
}

func NewStatic(employees []Employee) *Static {
	s := &Static{byNumber: make(map[string]Employee, len(employees))}
	for _, e := range employees {
		s.byNumber[strings.TrimSpace(e.EmployeeNumber)] = e
	}
	return s
}

// LoadStatic reads a JSON array of employees from path.
func LoadStatic(path string) (*Static, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read employee roster: %w", err)
	}
	var employees []Employee
	if err := json.Unmarshal(raw, &employees); err != nil {
		return nil, fmt.Errorf("decode employee roster %s: %w", path, err)
	}
	return NewStatic(employees), nil
}

func (s *Static) ResolveEmployee(ctx context.Context, employeeNumber string) (Employee, error) {
	e, ok := s.byNumber[strings.TrimSpace(employeeNumber)]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return e, nil
}
