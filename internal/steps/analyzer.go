package steps

import "fmt"

// Analyzer inspects a step list and reports which required parameters are
// still missing. It holds no mutable state: every Analyze call recomputes
// the missing-info set from scratch, so re-running it against the same
// steps yields the same answer.
type Analyzer struct {
	schemas  SchemaRegistry
	denylist Denylist
}

// NewAnalyzer creates an analyzer. Nil arguments select the defaults.
func NewAnalyzer(schemas SchemaRegistry, denylist Denylist) *Analyzer {
	if schemas == nil {
		schemas = DefaultSchemas()
	}
	if denylist == nil {
		denylist = DefaultDenylist()
	}
	return &Analyzer{schemas: schemas, denylist: denylist}
}

// Result is the outcome of one analysis pass.
type Result struct {
	Complete    bool          `json:"complete"`
	MissingInfo []MissingInfo `json:"missing_info"`
}

// Analyze walks the step list and collects, per step, the required fields
// whose values are absent or sentinel placeholders. Template references
// ({{...}}) count as present: they resolve at run time.
func (a *Analyzer) Analyze(list []Step) Result {
	var missing []MissingInfo

	for i, step := range list {
		specs := a.schemas.Lookup(step.Service, step.Operation)
		if len(specs) == 0 {
			continue
		}

		var fields []FieldSpec
		for _, spec := range specs {
			if !spec.Required {
				continue
			}
			if a.satisfied(step.Parameters[spec.ID]) {
				continue
			}
			fields = append(fields, spec)
		}

		if len(fields) > 0 {
			missing = append(missing, MissingInfo{
				StepIndex:       i,
				StepDescription: step.Action,
				Fields:          fields,
			})
		}
	}

	return Result{Complete: len(missing) == 0, MissingInfo: missing}
}

func (a *Analyzer) satisfied(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return !a.denylist.Matches(v)
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	default:
		return !a.denylist.Matches(fmt.Sprint(v))
	}
}
