package check

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"
)

// Entry is one compared sub-Jacobian.
type Entry struct {
	Component string // Empty for totals
	Of        string
	Wrt       string
	Declared  bool // Partials: whether the pair was declared
	Analytic  *mat.Dense
	Approx    *mat.Dense
	AbsErr    float64 // Frobenius norm of Analytic - Approx
	RelErr    float64 // AbsErr / ||Approx||, or AbsErr when Approx is zero
	OK        bool
}

// Report collects compared entries.
type Report struct {
	Kind    string // "totals" or "partials"
	Method  string
	RelTol  float64
	AbsTol  float64
	Entries []Entry
}

// OK reports whether every entry passed.
func (r *Report) OK() bool {
	for _, e := range r.Entries {
		if !e.OK {
			return false
		}
	}
	return true
}

// Failures returns the entries that did not pass.
func (r *Report) Failures() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if !e.OK {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry for (of, wrt), searching all components.
func (r *Report) Find(of, wrt string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Of == of && e.Wrt == wrt {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Report) add(component, of, wrt string, declared bool, analytic, approx *mat.Dense) {
	var diff mat.Dense
	diff.Sub(analytic, approx)
	abs := mat.Norm(&diff, 2)
	rel := abs
	if ref := mat.Norm(approx, 2); ref > 0 {
		rel = abs / ref
	}
	r.Entries = append(r.Entries, Entry{
		Component: component,
		Of:        of,
		Wrt:       wrt,
		Declared:  declared,
		Analytic:  analytic,
		Approx:    approx,
		AbsErr:    abs,
		RelErr:    rel,
		OK:        abs <= r.AbsTol || rel <= r.RelTol,
	})
}

// Write prints the report as an aligned table.
func (r *Report) Write(w io.Writer) error {
	title := "Total derivatives"
	if r.Kind == "partials" {
		title = "Partial derivatives"
	}
	if _, err := fmt.Fprintf(w, "%s check (%s, rtol=%g, atol=%g)\n", title, r.Method, r.RelTol, r.AbsTol); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := "of\twrt\tanalytic\tapprox\tabs err\trel err\t"
	if r.Kind == "partials" {
		header = "component\t" + header
	}
	fmt.Fprintln(tw, header)
	for _, e := range r.Entries {
		status := "ok"
		if !e.OK {
			status = "MISMATCH"
		}
		if r.Kind == "partials" && !e.Declared {
			status += " (undeclared)"
		}
		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%.3e\t%.3e\t%s",
			e.Of, e.Wrt, compact(e.Analytic), compact(e.Approx), e.AbsErr, e.RelErr, status)
		if r.Kind == "partials" {
			row = e.Component + "\t" + row
		}
		fmt.Fprintln(tw, row)
	}
	return tw.Flush()
}

// compact renders a small matrix on one line: "[1 2; 3 4]".
func compact(m *mat.Dense) string {
	r, c := m.Dims()
	if r == 1 && c == 1 {
		return strconv.FormatFloat(m.At(0, 0), 'g', 10, 64)
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < r; i++ {
		if i > 0 {
			sb.WriteString("; ")
		}
		for j := 0; j < c; j++ {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.FormatFloat(m.At(i, j), 'g', 6, 64))
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
