// Package planner frames requirement analysis as a planning decision:
// either the step list is ready to compile, or the caller needs to open a
// conversation to collect what is missing.
package planner

import (
	"log"

	"github.com/showrun-ai/showrun/internal/steps"
)

// Plan statuses.
const (
	StatusComplete   = "complete"
	StatusNeedsInput = "needs_input"
)

// Result is the planning decision for one step list.
type Result struct {
	Status        string              `json:"status"`
	CompiledReady bool                `json:"compiled_ready"`
	Questions     []steps.MissingInfo `json:"questions,omitempty"`
}

// Planner wraps a requirement analyzer.
type Planner struct {
	analyzer *steps.Analyzer
}

// New builds a planner. A nil analyzer gets the default schema set.
func New(analyzer *steps.Analyzer) *Planner {
	if analyzer == nil {
		analyzer = steps.NewAnalyzer(nil, nil)
	}
	return &Planner{analyzer: analyzer}
}

// Plan runs the analyzer once and branches on the outcome. It holds no
// state of its own.
func (p *Planner) Plan(list []steps.Step, name string) Result {
	res := p.analyzer.Analyze(list)
	if res.Complete {
		log.Printf("[planner] %q: %d step(s), ready to compile", name, len(list))
		return Result{Status: StatusComplete, CompiledReady: true}
	}
	log.Printf("[planner] %q: %d step(s) missing input across %d step(s)",
		name, len(list), len(res.MissingInfo))
	return Result{Status: StatusNeedsInput, Questions: res.MissingInfo}
}

// Replan re-evaluates a draft after its step list or collected parameters
// changed, merging collected answers in before analysis.
func (p *Planner) Replan(list []steps.Step, collected steps.Collected) Result {
	merged := steps.MergeCollected(list, collected)
	return p.Plan(merged, "replan")
}
