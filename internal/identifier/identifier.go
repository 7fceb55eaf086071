// Package identifier resolves scan/projection/angle range specifications
// into ordered, deduplicated identifier sets.
//
// The grammar is CLAUSE(,CLAUSE)* where CLAUSE is one of NUMBER,
// START-END or START-END:STEP. Scan and projection identifiers are
// non-negative integers; angles are floating-point and may be negative,
// e.g. "-90-90:5".
package identifier

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// AngleTolerance is the absolute tolerance used when comparing
// floating-point angle identifiers.
const AngleTolerance = 1e-3

// Axis names the three independent selection axes.
type Axis int

const (
	Scan Axis = iota
	Proj
	Angle
)

func (a Axis) String() string {
	switch a {
	case Scan:
		return "scan"
	case Proj:
		return "projection"
	case Angle:
		return "angle"
	}
	return "unknown"
}

// Float reports whether identifiers on this axis are floating-point.
func (a Axis) Float() bool { return a == Angle }

// SyntaxError reports a malformed range specification or list file entry.
type SyntaxError struct {
	Token  string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid identifier clause %q: %s", e.Token, e.Reason)
}

var (
	reSingle  = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)$`)
	reRange   = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)-(-?\d+(?:\.\d+)?)$`)
	reStepped = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)-(-?\d+(?:\.\d+)?):(\d+(?:\.\d+)?)$`)
)

// Set is a resolved identifier set: ascending, with no two elements
// equal. A Set resolved from empty include sources is unfiltered and
// contains every identifier.
type Set struct {
	axis     Axis
	vals     []float64
	filtered bool
}

// Resolve parses the include specification and list file, subtracts the
// exclude specification, and returns the ordered set. Empty spec and
// listFile yield an unfiltered set; an empty result after exclusion is
// not an error.
func Resolve(axis Axis, spec, listFile, exclude string) (*Set, error) {
	var include []float64

	if spec != "" {
		vals, err := parseSpec(axis, spec)
		if err != nil {
			return nil, err
		}
		include = append(include, vals...)
	}
	if listFile != "" {
		vals, err := parseListFile(axis, listFile)
		if err != nil {
			return nil, err
		}
		include = append(include, vals...)
	}

	s := &Set{axis: axis, filtered: spec != "" || listFile != ""}
	if !s.filtered {
		if exclude != "" {
			return nil, &SyntaxError{
				Token:  exclude,
				Reason: fmt.Sprintf("cannot exclude %s identifiers without an include specification", axis),
			}
		}
		return s, nil
	}

	var excl []float64
	if exclude != "" {
		vals, err := parseSpec(axis, exclude)
		if err != nil {
			return nil, err
		}
		excl = vals
	}

	sort.Float64s(include)
	tol := axisTolerance(axis)
	for _, v := range include {
		if len(s.vals) > 0 && math.Abs(v-s.vals[len(s.vals)-1]) <= tol {
			continue
		}
		if containsValue(excl, v, tol) {
			continue
		}
		s.vals = append(s.vals, v)
	}
	return s, nil
}

// Unfiltered reports whether this axis had no include specification at
// all, meaning every identifier matches.
func (s *Set) Unfiltered() bool { return !s.filtered }

// Len returns the number of resolved identifiers; zero for an
// unfiltered set.
func (s *Set) Len() int { return len(s.vals) }

// Contains reports whether v is a member. An unfiltered set contains
// everything. Angle membership uses AngleTolerance.
func (s *Set) Contains(v float64) bool {
	if !s.filtered {
		return true
	}
	return containsValue(s.vals, v, axisTolerance(s.axis))
}

// ContainsInt is Contains for integer-valued axes.
func (s *Set) ContainsInt(v int64) bool { return s.Contains(float64(v)) }

// Values returns the resolved identifiers in ascending order.
func (s *Set) Values() []float64 {
	out := make([]float64, len(s.vals))
	copy(out, s.vals)
	return out
}

// Ints returns the resolved identifiers as integers, for the scan and
// projection axes.
func (s *Set) Ints() []int64 {
	out := make([]int64, len(s.vals))
	for i, v := range s.vals {
		out[i] = int64(v)
	}
	return out
}

func axisTolerance(axis Axis) float64 {
	if axis.Float() {
		return AngleTolerance
	}
	return 0
}

func containsValue(vals []float64, v, tol float64) bool {
	for _, w := range vals {
		if math.Abs(w-v) <= tol {
			return true
		}
	}
	return false
}

func parseSpec(axis Axis, spec string) ([]float64, error) {
	var out []float64
	for _, clause := range strings.Split(spec, ",") {
		clause = strings.TrimSpace(clause)
		vals, err := parseClause(axis, clause)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func parseClause(axis Axis, clause string) ([]float64, error) {
	var start, end, step float64
	switch {
	case reSingle.MatchString(clause):
		m := reSingle.FindStringSubmatch(clause)
		v, err := parseNumber(axis, clause, m[1])
		if err != nil {
			return nil, err
		}
		start, end, step = v, v, 1
	case reStepped.MatchString(clause):
		m := reStepped.FindStringSubmatch(clause)
		var err error
		if start, err = parseNumber(axis, clause, m[1]); err != nil {
			return nil, err
		}
		if end, err = parseNumber(axis, clause, m[2]); err != nil {
			return nil, err
		}
		if step, err = parseNumber(axis, clause, m[3]); err != nil {
			return nil, err
		}
	case reRange.MatchString(clause):
		m := reRange.FindStringSubmatch(clause)
		var err error
		if start, err = parseNumber(axis, clause, m[1]); err != nil {
			return nil, err
		}
		if end, err = parseNumber(axis, clause, m[2]); err != nil {
			return nil, err
		}
		step = 1
	default:
		return nil, &SyntaxError{
			Token:  clause,
			Reason: "expected NUMBER, START-END or START-END:STEP",
		}
	}

	if step <= 0 {
		return nil, &SyntaxError{Token: clause, Reason: "step must be positive"}
	}
	if end < start {
		return nil, &SyntaxError{Token: clause, Reason: "end is smaller than start"}
	}

	var out []float64
	// The epsilon keeps the closed upper bound inclusive for
	// floating-point steps.
	eps := step * 1e-9
	for i := 0; ; i++ {
		v := start + float64(i)*step
		if v > end+eps {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

func parseNumber(axis Axis, clause, token string) (float64, error) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, &SyntaxError{Token: clause, Reason: fmt.Sprintf("%q is not a number", token)}
	}
	if !axis.Float() {
		if v != math.Trunc(v) {
			return 0, &SyntaxError{
				Token:  clause,
				Reason: fmt.Sprintf("%s identifiers must be integers", axis),
			}
		}
		if v < 0 {
			return 0, &SyntaxError{
				Token:  clause,
				Reason: fmt.Sprintf("%s identifiers must be non-negative", axis),
			}
		}
	}
	return v, nil
}

// parseListFile reads one identifier per line, ignoring blank lines.
// Only the first whitespace-delimited column is used, so files with
// trailing columns remain usable.
func parseListFile(axis Axis, path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identifier list: %w", err)
	}
	defer f.Close()

	var out []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		v, err := parseNumber(axis, fields[0], fields[0])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifier list %s: %w", path, err)
	}
	return out, nil
}
