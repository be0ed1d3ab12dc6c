package planner

import (
	"testing"

	"github.com/showrun-ai/showrun/internal/steps"
)

func TestPlanComplete(t *testing.T) {
	p := New(nil)
	list := []steps.Step{
		{Action: "read", Service: "googleSheets", Operation: "readRange",
			Parameters: map[string]interface{}{"spreadsheet_id": "1abc", "range": "A2:A10"}},
	}
	res := p.Plan(list, "wf")
	if res.Status != StatusComplete || !res.CompiledReady {
		t.Errorf("result = %+v, want complete", res)
	}
	if len(res.Questions) != 0 {
		t.Errorf("complete plan carried questions: %v", res.Questions)
	}
}

func TestPlanNeedsInput(t *testing.T) {
	p := New(nil)
	list := []steps.Step{
		{Action: "read", Service: "googleSheets", Operation: "readRange",
			Parameters: map[string]interface{}{"spreadsheet_id": "detected_id"}},
	}
	res := p.Plan(list, "wf")
	if res.Status != StatusNeedsInput || res.CompiledReady {
		t.Fatalf("result = %+v, want needs_input", res)
	}
	if len(res.Questions) != 1 || res.Questions[0].StepIndex != 0 {
		t.Errorf("questions = %+v", res.Questions)
	}
}

func TestReplanAfterAnswers(t *testing.T) {
	p := New(nil)
	list := []steps.Step{
		{Action: "read", Service: "googleSheets", Operation: "readRange", Parameters: map[string]interface{}{}},
	}
	if res := p.Plan(list, "wf"); res.Status != StatusNeedsInput {
		t.Fatalf("precondition: plan should need input, got %+v", res)
	}

	collected := steps.Collected{
		0: {"spreadsheet_id": "1abc", "range": "A2:A10"},
	}
	res := p.Replan(list, collected)
	if res.Status != StatusComplete {
		t.Errorf("replan after answers = %+v, want complete", res)
	}
}
