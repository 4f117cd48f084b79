package dataset

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// rowVariable is the name a record is bound to inside filter expressions
const rowVariable = "row"

// filterCostLimit bounds the evaluation cost of a single expression
const filterCostLimit = 1000000

// Filter is a compiled CEL predicate over records, e.g.
//
//	row.price > 100 && row.category == "Electronics"
//
// A Filter is safe for concurrent use.
type Filter struct {
	expression string
	program    cel.Program
}

// CompileFilter compiles expression into a Filter. The expression sees the
// current record as the dynamic map variable "row".
func CompileFilter(expression string) (*Filter, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("filter expression cannot be empty")
	}

	env, err := cel.NewEnv(
		cel.Variable(rowVariable, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := env.Program(ast, cel.CostLimit(filterCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &Filter{expression: expression, program: prog}, nil
}

// String returns the source expression
func (f *Filter) String() string {
	return f.expression
}

// Match evaluates the filter against one record. Non-boolean results count
// as no match; evaluation errors are returned alongside false.
func (f *Filter) Match(r *Record) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{rowVariable: r.Map()})
	if err != nil {
		return false, err
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

// Apply returns the records that match, preserving order. Records whose
// evaluation fails are excluded; the number of such records is returned.
func (f *Filter) Apply(ds Dataset) (Dataset, int) {
	out := make(Dataset, 0, len(ds))
	failed := 0
	for _, r := range ds {
		matched, err := f.Match(r)
		if err != nil {
			failed++
			continue
		}
		if matched {
			out = append(out, r)
		}
	}
	return out, failed
}
