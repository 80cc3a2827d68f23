// Package dataset loads the employee, department and financial CSV tables,
// joins them on the department key and renders the joined rows as text
// documents for embedding.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// Employee is one row of employees.csv.
type Employee struct {
	ID           int        `csv:"id"`
	FirstName    string     `csv:"first_name"`
	LastName     string     `csv:"last_name"`
	DepartmentID int        `csv:"department_id"`
	Position     string     `csv:"position"`
	Salary       float64    `csv:"salary"`
	HireDate     string     `csv:"hire_date"`
	ManagerID    OptionalID `csv:"manager_id"`
}

// FullName joins first and last name.
func (e Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Department is one row of departments.csv.
type Department struct {
	ID       int        `csv:"id"`
	Name     string     `csv:"name"`
	HeadID   OptionalID `csv:"head_id"`
	Budget   float64    `csv:"budget"`
	Location string     `csv:"location"`
}

// Financial is one quarterly row of financials.csv.
type Financial struct {
	ID           int     `csv:"id"`
	DepartmentID int     `csv:"department_id"`
	Year         int     `csv:"year"`
	Quarter      int     `csv:"quarter"`
	Revenue      float64 `csv:"revenue"`
	Expenses     float64 `csv:"expenses"`
	Profit       float64 `csv:"profit"`
}

// OptionalID is a nullable integer key. Exported tables often write nullable
// integer columns as floats ("1.0") with empty cells for missing values.
type OptionalID struct {
	Value int
	Valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (o *OptionalID) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		*o = OptionalID{}
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		*o = OptionalID{Value: i, Valid: true}
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return fmt.Errorf("invalid id %q", s)
	}
	*o = OptionalID{Value: int(f), Valid: true}
	return nil
}

// MarshalCSV implements gocsv.TypeMarshaller.
func (o OptionalID) MarshalCSV() (string, error) {
	if !o.Valid {
		return "", nil
	}
	return strconv.Itoa(o.Value), nil
}
