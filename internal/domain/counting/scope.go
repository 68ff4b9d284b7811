package counting

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/domain/location"
)

// Scope selects what a session counts. Empty selects everything.
type Scope struct {
	Zones      []string `json:"zones,omitempty"`
	Locations  []string `json:"locations,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Classes    []string `json:"classes,omitempty"`

	// Expression is an optional CEL predicate over the candidate fields
	// item_code, item_name, category, abc_class, location, zone, lot and
	// quantity.
	Expression string `json:"expression,omitempty"`
}

// FilterKind names what a Filter matches on.
type FilterKind string

const (
	FilterZone     FilterKind = "zone"
	FilterLocation FilterKind = "location"
	FilterCategory FilterKind = "category"
	FilterClass    FilterKind = "class"
)

// IsLocation reports whether the filter restricts the location dimension.
func (k FilterKind) IsLocation() bool {
	return k == FilterZone || k == FilterLocation
}

// Filter is one scope restriction: the attribute must equal one of Values.
type Filter struct {
	Kind   FilterKind
	Values []string
}

// ScopeQuery is a validated scope. Filters of one dimension intersect each
// other, and the location and product dimensions intersect.
type ScopeQuery struct {
	Filters   []Filter
	Predicate *Predicate
}

// Build validates the scope and compiles it into a query.
func (s Scope) Build() (ScopeQuery, error) {
	var q ScopeQuery

	add := func(kind FilterKind, raw []string, canon func(string) string) error {
		if len(raw) == 0 {
			return nil
		}
		values := make([]string, 0, len(raw))
		for _, v := range raw {
			v = canon(v)
			if v == "" {
				return apperror.NewValidation("scope filter values cannot be empty").
					WithDetail("field", "scope."+string(kind))
			}
			if !slices.Contains(values, v) {
				values = append(values, v)
			}
		}
		q.Filters = append(q.Filters, Filter{Kind: kind, Values: values})
		return nil
	}

	if err := add(FilterZone, s.Zones, strings.TrimSpace); err != nil {
		return ScopeQuery{}, err
	}
	if err := add(FilterLocation, s.Locations, location.CanonicalKey); err != nil {
		return ScopeQuery{}, err
	}
	if err := add(FilterCategory, s.Categories, strings.TrimSpace); err != nil {
		return ScopeQuery{}, err
	}
	for _, c := range s.Classes {
		switch strings.ToUpper(strings.TrimSpace(c)) {
		case "A", "B", "C":
		default:
			return ScopeQuery{}, apperror.NewValidation("abc class must be A, B or C").
				WithDetail("field", "scope.classes").
				WithDetail("value", c)
		}
	}
	if err := add(FilterClass, s.Classes, func(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }); err != nil {
		return ScopeQuery{}, err
	}

	if expr := strings.TrimSpace(s.Expression); expr != "" {
		p, err := CompilePredicate(expr)
		if err != nil {
			return ScopeQuery{}, err
		}
		q.Predicate = p
	}
	return q, nil
}

// Values returns the allowed values of kind, or nil when unrestricted.
func (q ScopeQuery) Values(kind FilterKind) []string {
	for _, f := range q.Filters {
		if f.Kind == kind {
			return f.Values
		}
	}
	return nil
}

// Matches evaluates every filter and the predicate against a candidate.
func (q ScopeQuery) Matches(c Candidate) (bool, error) {
	for _, f := range q.Filters {
		if !slices.Contains(f.Values, f.Kind.value(c)) {
			return false, nil
		}
	}
	if q.Predicate == nil {
		return true, nil
	}
	return q.Predicate.Eval(c)
}

func (k FilterKind) value(c Candidate) string {
	switch k {
	case FilterZone:
		return c.Zone
	case FilterLocation:
		return c.LocationCode
	case FilterCategory:
		return c.Category
	case FilterClass:
		return c.ABCClass
	}
	return ""
}

// Predicate is a compiled CEL scope expression.
type Predicate struct {
	source  string
	program cel.Program
}

var scopeEnv = sync.OnceValues(func() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item_code", cel.StringType),
		cel.Variable("item_name", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("abc_class", cel.StringType),
		cel.Variable("location", cel.StringType),
		cel.Variable("zone", cel.StringType),
		cel.Variable("lot", cel.StringType),
		cel.Variable("quantity", cel.IntType),
	)
})

// CompilePredicate parses and type-checks a boolean scope expression.
func CompilePredicate(expr string) (*Predicate, error) {
	env, err := scopeEnv()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("cel env: %w", err))
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid scope expression").
			WithDetail("field", "scope.expression").
			WithDetail("error", iss.Err().Error())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperror.NewValidation("scope expression must evaluate to bool").
			WithDetail("field", "scope.expression").
			WithDetail("type", ast.OutputType().String())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, apperror.NewValidation("invalid scope expression").
			WithDetail("field", "scope.expression").
			WithDetail("error", err.Error())
	}
	return &Predicate{source: expr, program: prg}, nil
}

// Eval runs the predicate for one candidate.
func (p *Predicate) Eval(c Candidate) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"item_code": c.ItemCode,
		"item_name": c.ItemName,
		"category":  c.Category,
		"abc_class": c.ABCClass,
		"location":  c.LocationCode,
		"zone":      c.Zone,
		"lot":       c.Lot,
		"quantity":  c.Quantity,
	})
	if err != nil {
		return false, apperror.NewValidation("scope expression failed").
			WithDetail("field", "scope.expression").
			WithDetail("error", err.Error())
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	return p.source
}
