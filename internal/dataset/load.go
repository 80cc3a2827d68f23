package dataset

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/gocarina/gocsv"
)

// File names expected in the data directory.
const (
	EmployeesFile   = "employees.csv"
	DepartmentsFile = "departments.csv"
	FinancialsFile  = "financials.csv"
)

var (
	// ErrJoin is returned when a row references a key that does not exist in
	// the table it joins against.
	ErrJoin = errors.New("dataset: join mismatch")
	// ErrInvalidRecord is returned when a row is missing a required field.
	ErrInvalidRecord = errors.New("dataset: invalid record")
)

// Dataset is the joined, read-only view over the three tables. Build a new
// one to reload; never mutate a Dataset after construction.
type Dataset struct {
	employees   []Employee
	departments []Department
	financials  []Financial

	deptByID  map[int]Department
	empByID   map[int]Employee
	finByDept map[int][]Financial
}

// Load reads the three CSV files from dir and joins them.
func Load(dir string) (*Dataset, error) {
	emps, err := readFile(filepath.Join(dir, EmployeesFile), ReadEmployees)
	if err != nil {
		return nil, err
	}
	depts, err := readFile(filepath.Join(dir, DepartmentsFile), ReadDepartments)
	if err != nil {
		return nil, err
	}
	fins, err := readFile(filepath.Join(dir, FinancialsFile), ReadFinancials)
	if err != nil {
		return nil, err
	}
	return New(emps, depts, fins)
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	rows, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

func readRows[T any](r io.Reader) ([]T, error) {
	var rows []T
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadEmployees decodes employees.csv content.
func ReadEmployees(r io.Reader) ([]Employee, error) { return readRows[Employee](r) }

// ReadDepartments decodes departments.csv content.
func ReadDepartments(r io.Reader) ([]Department, error) { return readRows[Department](r) }

// ReadFinancials decodes financials.csv content.
func ReadFinancials(r io.Reader) ([]Financial, error) { return readRows[Financial](r) }

// New validates the rows and builds the join indexes. Every employee and
// financial row must reference an existing department, and every manager id
// must reference an existing employee.
func New(emps []Employee, depts []Department, fins []Financial) (*Dataset, error) {
	d := &Dataset{
		employees:   append([]Employee(nil), emps...),
		departments: append([]Department(nil), depts...),
		financials:  append([]Financial(nil), fins...),
		deptByID:    make(map[int]Department, len(depts)),
		empByID:     make(map[int]Employee, len(emps)),
		finByDept:   make(map[int][]Financial),
	}

	for i, dep := range d.departments {
		if dep.ID <= 0 || dep.Name == "" {
			return nil, fmt.Errorf("%w: departments row %d: id and name are required", ErrInvalidRecord, i+1)
		}
		if _, dup := d.deptByID[dep.ID]; dup {
			return nil, fmt.Errorf("%w: departments row %d: duplicate id %d", ErrInvalidRecord, i+1, dep.ID)
		}
		d.deptByID[dep.ID] = dep
	}

	for i, e := range d.employees {
		if e.ID <= 0 || e.FullName() == "" || e.Position == "" {
			return nil, fmt.Errorf("%w: employees row %d: id, name and position are required", ErrInvalidRecord, i+1)
		}
		if _, dup := d.empByID[e.ID]; dup {
			return nil, fmt.Errorf("%w: employees row %d: duplicate id %d", ErrInvalidRecord, i+1, e.ID)
		}
		if _, ok := d.deptByID[e.DepartmentID]; !ok {
			return nil, fmt.Errorf("%w: employee %d references unknown department %d", ErrJoin, e.ID, e.DepartmentID)
		}
		d.empByID[e.ID] = e
	}

	for _, e := range d.employees {
		if e.ManagerID.Valid {
			if _, ok := d.empByID[e.ManagerID.Value]; !ok {
				return nil, fmt.Errorf("%w: employee %d references unknown manager %d", ErrJoin, e.ID, e.ManagerID.Value)
			}
		}
	}

	for i, f := range d.financials {
		if f.Year <= 0 || f.Quarter < 1 || f.Quarter > 4 {
			return nil, fmt.Errorf("%w: financials row %d: year and quarter 1-4 are required", ErrInvalidRecord, i+1)
		}
		if _, ok := d.deptByID[f.DepartmentID]; !ok {
			return nil, fmt.Errorf("%w: financial row %d references unknown department %d", ErrJoin, f.ID, f.DepartmentID)
		}
		d.finByDept[f.DepartmentID] = append(d.finByDept[f.DepartmentID], f)
	}
	for id := range d.finByDept {
		rows := d.finByDept[id]
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].Year != rows[j].Year {
				return rows[i].Year < rows[j].Year
			}
			return rows[i].Quarter < rows[j].Quarter
		})
	}

	return d, nil
}

// Employees returns the employee rows in file order.
func (d *Dataset) Employees() []Employee { return append([]Employee(nil), d.employees...) }

// Departments returns the department rows in file order.
func (d *Dataset) Departments() []Department { return append([]Department(nil), d.departments...) }

// Financials returns the financial rows in file order.
func (d *Dataset) Financials() []Financial { return append([]Financial(nil), d.financials...) }

// Department looks up a department by id.
func (d *Dataset) Department(id int) (Department, bool) {
	dep, ok := d.deptByID[id]
	return dep, ok
}
