package solver

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const maxNameLen = 64

// columnName returns the file-safe name of column j. The index prefix keeps
// names unique and lets solution parsers map names back to columns.
func columnName(j int, name string) string {
	return "x" + strconv.Itoa(j) + "_" + sanitize(name)
}

func rowName(i int, name string) string {
	return "c" + strconv.Itoa(i) + "_" + sanitize(name)
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	return b.String()
}

// columnIndex parses the index prefix written by columnName.
func columnIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "x") {
		return 0, false
	}
	rest := name[1:]
	if i := strings.IndexByte(rest, '_'); i >= 0 {
		rest = rest[:i]
	}
	j, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return j, true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeTerms(w *bufio.Writer, p *Problem, terms []Term) {
	for k, t := range terms {
		if k > 0 && k%6 == 0 {
			w.WriteString("\n   ")
		}
		if t.Coef < 0 {
			fmt.Fprintf(w, " - %s %s", formatFloat(-t.Coef), columnName(t.Col, p.Columns[t.Col].Name))
		} else {
			fmt.Fprintf(w, " + %s %s", formatFloat(t.Coef), columnName(t.Col, p.Columns[t.Col].Name))
		}
	}
}

// WriteLP writes the problem in CPLEX LP format. Rows without terms are
// omitted; callers check them with emptyRowFeasible. The objective offset is
// not written.
func WriteLP(out io.Writer, p *Problem) error {
	w := bufio.NewWriter(out)
	w.WriteString("\\ energy system model\n")
	w.WriteString("Minimize\n obj:")
	var obj []Term
	for j, c := range p.Columns {
		if c.Cost != 0 {
			obj = append(obj, Term{Col: j, Coef: c.Cost})
		}
	}
	if len(obj) == 0 && len(p.Columns) > 0 {
		obj = []Term{{Col: 0, Coef: 0}}
	}
	writeTerms(w, p, obj)
	w.WriteString("\nSubject To\n")
	for i, r := range p.Rows {
		if len(r.Terms) == 0 {
			continue
		}
		fmt.Fprintf(w, " %s:", rowName(i, r.Name))
		writeTerms(w, p, r.Terms)
		fmt.Fprintf(w, " %s %s\n", r.Sense, formatFloat(r.RHS))
	}
	w.WriteString("Bounds\n")
	for j, c := range p.Columns {
		name := columnName(j, c.Name)
		switch {
		case c.Lower == c.Upper:
			fmt.Fprintf(w, " %s = %s\n", name, formatFloat(c.Lower))
		case math.IsInf(c.Upper, 1):
			fmt.Fprintf(w, " %s >= %s\n", name, formatFloat(c.Lower))
		default:
			fmt.Fprintf(w, " %s <= %s <= %s\n", formatFloat(c.Lower), name, formatFloat(c.Upper))
		}
	}
	w.WriteString("End\n")
	return w.Flush()
}

// WriteMPS writes the problem in free MPS format. Every column is written in
// index order so readers number them 1..n like the problem.
func WriteMPS(out io.Writer, p *Problem) error {
	w := bufio.NewWriter(out)
	w.WriteString("NAME energysystem\nROWS\n N obj\n")
	for i, r := range p.Rows {
		var t string
		switch r.Sense {
		case LessEqual:
			t = "L"
		case GreaterEqual:
			t = "G"
		default:
			t = "E"
		}
		fmt.Fprintf(w, " %s %s\n", t, rowName(i, r.Name))
	}

	// transpose rows into per-column entries
	entries := make([][]Term, len(p.Columns))
	for i, r := range p.Rows {
		for _, t := range r.Terms {
			entries[t.Col] = append(entries[t.Col], Term{Col: i, Coef: t.Coef})
		}
	}
	w.WriteString("COLUMNS\n")
	for j, c := range p.Columns {
		name := columnName(j, c.Name)
		fmt.Fprintf(w, " %s obj %s\n", name, formatFloat(c.Cost))
		for _, e := range entries[j] {
			fmt.Fprintf(w, " %s %s %s\n", name, rowName(e.Col, p.Rows[e.Col].Name), formatFloat(e.Coef))
		}
	}
	w.WriteString("RHS\n")
	for i, r := range p.Rows {
		if r.RHS != 0 {
			fmt.Fprintf(w, " rhs %s %s\n", rowName(i, r.Name), formatFloat(r.RHS))
		}
	}
	w.WriteString("BOUNDS\n")
	for j, c := range p.Columns {
		name := columnName(j, c.Name)
		switch {
		case c.Lower == c.Upper:
			fmt.Fprintf(w, " FX bnd %s %s\n", name, formatFloat(c.Lower))
		default:
			if c.Lower != 0 {
				fmt.Fprintf(w, " LO bnd %s %s\n", name, formatFloat(c.Lower))
			}
			if !math.IsInf(c.Upper, 1) {
				fmt.Fprintf(w, " UP bnd %s %s\n", name, formatFloat(c.Upper))
			}
		}
	}
	w.WriteString("ENDATA\n")
	return w.Flush()
}

// ParseCBCSolution reads a solution file written by cbc's "solu" command.
// Columns missing from the file are zero.
func ParseCBCSolution(r io.Reader, columns int) (Status, []float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return StatusError, nil, err
		}
		return StatusError, nil, fmt.Errorf("empty cbc solution")
	}
	header := strings.TrimSpace(sc.Text())
	var status Status
	switch {
	case strings.HasPrefix(header, "Optimal"):
		status = StatusOptimal
	case strings.Contains(strings.ToLower(header), "infeasible"):
		status = StatusInfeasible
	case strings.Contains(strings.ToLower(header), "unbounded"):
		status = StatusUnbounded
	default:
		return StatusError, nil, fmt.Errorf("unexpected cbc status %q", header)
	}

	values := make([]float64, columns)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && fields[0] == "**" {
			fields = fields[1:]
		}
		if len(fields) < 3 {
			continue
		}
		j, ok := columnIndex(fields[1])
		if !ok || j >= columns {
			return StatusError, nil, fmt.Errorf("unknown column %q in cbc solution", fields[1])
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return StatusError, nil, fmt.Errorf("bad value for %s: %w", fields[1], err)
		}
		values[j] = v
	}
	if err := sc.Err(); err != nil {
		return StatusError, nil, err
	}
	return status, values, nil
}

// ParseGLPKSolution reads a basic solution written by glpsol -w. Columns are
// numbered from 1 in the order of the model file.
func ParseGLPKSolution(r io.Reader, columns int) (Status, []float64, error) {
	sc := bufio.NewScanner(r)
	status := StatusError
	var sawHeader bool
	values := make([]float64, columns)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "s":
			// s bas <rows> <cols> <primal> <dual> <obj>
			if len(fields) < 6 || fields[1] != "bas" {
				return StatusError, nil, fmt.Errorf("unsupported glpk solution line %q", sc.Text())
			}
			sawHeader = true
			primal, dual := fields[4], fields[5]
			switch {
			case primal == "f" && dual == "f":
				status = StatusOptimal
			case primal == "n" || primal == "i":
				status = StatusInfeasible
			case primal == "f" && (dual == "n" || dual == "i"):
				status = StatusUnbounded
			}
		case "j":
			// j <col> <stat> <value> <dual>
			if len(fields) < 4 {
				continue
			}
			j, err := strconv.Atoi(fields[1])
			if err != nil || j < 1 || j > columns {
				return StatusError, nil, fmt.Errorf("bad glpk column line %q", sc.Text())
			}
			v, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return StatusError, nil, fmt.Errorf("bad glpk value %q: %w", fields[3], err)
			}
			values[j-1] = v
		}
	}
	if err := sc.Err(); err != nil {
		return StatusError, nil, err
	}
	if !sawHeader {
		return StatusError, nil, fmt.Errorf("glpk solution has no status line")
	}
	return status, values, nil
}
