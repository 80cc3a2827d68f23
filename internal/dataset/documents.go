package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Mode selects how the dataset is rendered into documents.
type Mode string

const (
	// ModeEmployee renders one document per employee.
	ModeEmployee Mode = "employee"
	// ModeDepartment renders one document per department plus one per
	// department and year of financial results.
	ModeDepartment Mode = "department"
	// ModeAll renders both.
	ModeAll Mode = "all"
)

// ParseMode validates a configured document mode. Empty means ModeEmployee.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeEmployee:
		return ModeEmployee, nil
	case ModeDepartment:
		return ModeDepartment, nil
	case ModeAll:
		return ModeAll, nil
	}
	return "", fmt.Errorf("unknown document mode %q", s)
}

// Document kinds.
const (
	KindEmployee   = "employee"
	KindDepartment = "department"
	KindFinancials = "financials"
)

// Document is embedding input derived from one or more joined rows.
type Document struct {
	ID   string
	Kind string
	Text string
}

// Documents renders the dataset. Output order is deterministic for a given
// dataset and mode.
func (d *Dataset) Documents(mode Mode) []Document {
	switch mode {
	case ModeDepartment:
		return d.departmentDocuments()
	case ModeAll:
		return append(d.employeeDocuments(), d.departmentDocuments()...)
	default:
		return d.employeeDocuments()
	}
}

func (d *Dataset) employeeDocuments() []Document {
	docs := make([]Document, 0, len(d.employees))
	for _, e := range d.employees {
		docs = append(docs, Document{
			ID:   KindEmployee + ":" + strconv.Itoa(e.ID),
			Kind: KindEmployee,
			Text: d.employeeText(e),
		})
	}
	return docs
}

func (d *Dataset) employeeText(e Employee) string {
	dep, _ := d.Department(e.DepartmentID)

	var b strings.Builder
	fmt.Fprintf(&b, "Employee: %s (%s), Department: %s (Location: %s), Salary: %s, Budget: %s",
		e.FullName(), e.Position, dep.Name, dep.Location, FormatMoney(e.Salary), FormatMoney(dep.Budget))
	if e.HireDate != "" {
		fmt.Fprintf(&b, ", Hire Date: %s", e.HireDate)
	}
	if e.ManagerID.Valid {
		fmt.Fprintf(&b, ", Reports To: %s", d.empByID[e.ManagerID.Value].FullName())
	}

	fins := d.finByDept[e.DepartmentID]
	if len(fins) == 0 {
		b.WriteString(", Financials: none reported")
		return b.String()
	}
	b.WriteString(", Financials: ")
	for i, f := range fins {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "Q%d %d Revenue: %s, Expenses: %s, Profit: %s",
			f.Quarter, f.Year, FormatMoney(f.Revenue), FormatMoney(f.Expenses), FormatMoney(f.Profit))
	}
	return b.String()
}

func (d *Dataset) departmentDocuments() []Document {
	depts := append([]Department(nil), d.departments...)
	sort.SliceStable(depts, func(i, j int) bool {
		if depts[i].Name != depts[j].Name {
			return depts[i].Name < depts[j].Name
		}
		return depts[i].ID < depts[j].ID
	})

	var docs []Document
	for _, dep := range depts {
		var b strings.Builder
		fmt.Fprintf(&b, "Department: %s\nLocation: %s\nBudget: %s\n", dep.Name, dep.Location, FormatMoney(dep.Budget))
		if dep.HeadID.Valid {
			if head, ok := d.empByID[dep.HeadID.Value]; ok {
				fmt.Fprintf(&b, "Head: %s\n", head.FullName())
			}
		}
		b.WriteString("Employees:\n")
		n := 0
		for _, e := range d.employees {
			if e.DepartmentID != dep.ID {
				continue
			}
			n++
			fmt.Fprintf(&b, "%s:\n- Position: %s\n- Salary: %s\n- Hire Date: %s\n",
				e.FullName(), e.Position, FormatMoney(e.Salary), e.HireDate)
		}
		if n == 0 {
			b.WriteString("none\n")
		}
		docs = append(docs, Document{
			ID:   KindDepartment + ":" + strconv.Itoa(dep.ID),
			Kind: KindDepartment,
			Text: strings.TrimSpace(b.String()),
		})
	}

	for _, dep := range depts {
		fins := d.finByDept[dep.ID]
		for start := 0; start < len(fins); {
			year := fins[start].Year
			end := start
			var b strings.Builder
			fmt.Fprintf(&b, "Department: %s\nYear: %d\nFinancial Results:\n", dep.Name, year)
			for ; end < len(fins) && fins[end].Year == year; end++ {
				f := fins[end]
				fmt.Fprintf(&b, "Q%d:\n- Revenue: %s\n- Expenses: %s\n- Profit: %s\n",
					f.Quarter, FormatMoney(f.Revenue), FormatMoney(f.Expenses), FormatMoney(f.Profit))
			}
			docs = append(docs, Document{
				ID:   fmt.Sprintf("%s:%d:%d", KindFinancials, dep.ID, year),
				Kind: KindFinancials,
				Text: strings.TrimSpace(b.String()),
			})
			start = end
		}
	}
	return docs
}

// FormatMoney renders an amount in dollars with thousands separators.
// Whole amounts have no decimals; others keep two.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if v == math.Trunc(v) && v < math.MaxInt64 {
		return sign + "$" + humanize.Comma(int64(v))
	}
	return sign + "$" + humanize.FormatFloat("#,###.##", v)
}
