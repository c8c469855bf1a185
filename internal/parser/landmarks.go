package parser

// Landmark metric fields.
const (
	FieldGenerationTime       = "lmgraph_generation_time"
	FieldLandmarks            = "landmarks"
	FieldLandmarksDisjunctive = "landmarks_disjunctive"
	FieldLandmarksConjunctive = "landmarks_conjunctive"
	FieldOrderings            = "orderings"
	FieldProgGoal             = "prog_goal"
	FieldProgGreedyNecessary  = "prog_gn"
	FieldProgReasonable       = "prog_r"
)

// OrderingTypes are the ordering subtypes reported per type by some landmark
// generators. Each yields a field "orderings_<type>".
var OrderingTypes = []string{
	"necessary",
	"greedy-necessary",
	"natural",
	"reasonable",
	"obedient-reasonable",
}

// LandmarkParser returns the rules for landmark graph statistics.
func LandmarkParser() *Parser {
	p := New()
	p.MustAddPattern(FieldGenerationTime, `Landmark graph generation time: (.+)s`, Float)
	p.MustAddGroups(
		`Landmark graph contains (\d+) landmarks(?:, of which (\d+) are disjunctive and (\d+) are conjunctive)?\.`,
		Int, FieldLandmarks, FieldLandmarksDisjunctive, FieldLandmarksConjunctive)
	p.MustAddPattern(FieldOrderings, `Landmark graph contains (\d+) orderings\.`, Int)
	for _, typ := range OrderingTypes {
		p.MustAddPattern("orderings_"+typ, `Landmark graph has (\d+) `+typ+` orderings\.`, Int)
	}
	p.MustAddGroups(
		`Landmark progression marked landmarks future due to (\d+) goals, (\d+) greedy-necessary orderings, and (\d+) reasonable orderings\.`,
		Int, FieldProgGoal, FieldProgGreedyNecessary, FieldProgReasonable)
	return p
}
