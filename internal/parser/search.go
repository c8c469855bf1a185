package parser

// Search metric fields.
const (
	FieldSolutionFound = "solution_found"
	FieldCost          = "cost"
	FieldPlanLength    = "plan_length"
	FieldExpansions    = "expansions"
	FieldEvaluations   = "evaluations"
	FieldGenerated     = "generated"
	FieldSearchTime    = "search_time"
	FieldTotalTime     = "total_time"
	FieldMemory        = "memory"
)

// SearchParser returns the rules for the planner's search statistics.
func SearchParser() *Parser {
	p := New()
	p.MustAddPattern(FieldSolutionFound, `(Solution found)!`, String)
	p.MustAddPattern(FieldCost, `Plan cost: (\d+)`, Int)
	p.MustAddPattern(FieldPlanLength, `Plan length: (\d+) step\(s\)\.`, Int)
	p.MustAddPattern(FieldExpansions, `Expanded (\d+) state\(s\)\.`, Int)
	p.MustAddPattern(FieldEvaluations, `Evaluated (\d+) state\(s\)\.`, Int)
	p.MustAddPattern(FieldGenerated, `Generated (\d+) state\(s\)\.`, Int)
	p.MustAddPattern(FieldSearchTime, `Search time: (.+)s`, Float)
	p.MustAddPattern(FieldTotalTime, `Total time: (.+)s`, Float)
	p.MustAddPattern(FieldMemory, `Peak memory: (\d+) KB`, Int)
	return p
}

// Merge combines the rule tables of parsers into one. Field names must stay
// unique across all of them.
func Merge(parsers ...*Parser) (*Parser, error) {
	merged := New()
	for _, p := range parsers {
		for _, r := range p.rules {
			if _, ok := merged.fields[r.Field]; ok {
				return nil, &DuplicateFieldError{Field: r.Field}
			}
			merged.rules = append(merged.rules, r)
			merged.fields[r.Field] = struct{}{}
		}
	}
	return merged, nil
}
