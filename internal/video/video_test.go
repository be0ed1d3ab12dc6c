package video

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/showrun-ai/showrun/internal/steps"
)

func TestExtractStepsPlainArray(t *testing.T) {
	raw := `[{"action":"read","service":"googleSheets","operation":"readRange","parameters":{"spreadsheet_id":"1abc"}}]`
	list, err := ExtractSteps(raw)
	if err != nil {
		t.Fatalf("ExtractSteps: %v", err)
	}
	if len(list) != 1 || list[0].Service != "googleSheets" {
		t.Errorf("steps = %+v", list)
	}
	if list[0].Parameters["spreadsheet_id"] != "1abc" {
		t.Errorf("parameters = %v", list[0].Parameters)
	}
}

func TestExtractStepsInsideProse(t *testing.T) {
	raw := "Here is what the recording shows:\n\n" +
		`[{"action":"send","service":"gmail","operation":"sendMessage","parameters":{}}]` +
		"\n\nLet me know if that matches."
	list, err := ExtractSteps(raw)
	if err != nil {
		t.Fatalf("ExtractSteps: %v", err)
	}
	if len(list) != 1 || list[0].Operation != "sendMessage" {
		t.Errorf("steps = %+v", list)
	}
}

func TestExtractStepsWrappedObject(t *testing.T) {
	raw := `{"steps":[{"action":"a","service":"googleSheets","operation":"appendData"}]}`
	list, err := ExtractSteps(raw)
	if err != nil {
		t.Fatalf("ExtractSteps: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("steps = %+v", list)
	}
}

func TestExtractStepsDropsMalformed(t *testing.T) {
	raw := `[{"action":"no service"},{"action":"ok","service":"gmail","operation":"createDraft"}]`
	list, err := ExtractSteps(raw)
	if err != nil {
		t.Fatalf("ExtractSteps: %v", err)
	}
	if len(list) != 1 || list[0].Operation != "createDraft" {
		t.Errorf("malformed step not dropped: %+v", list)
	}
}

func TestExtractStepsNoJSON(t *testing.T) {
	if _, err := ExtractSteps("I could not tell what the video shows."); err == nil {
		t.Error("expected error for prose-only output")
	}
}

type fakeFrames struct {
	frames []Frame
	err    error
}

func (f *fakeFrames) ExtractFrames(_ context.Context, _ string, _ time.Duration) ([]Frame, error) {
	return f.frames, f.err
}

type fakeOracle struct {
	list []steps.Step
	err  error
}

func (f *fakeOracle) InferSteps(_ context.Context, _ []Frame) ([]steps.Step, error) {
	return f.list, f.err
}

func TestProcessorHappyPath(t *testing.T) {
	p := NewProcessor(
		&fakeFrames{frames: []Frame{{Timestamp: 0}, {Timestamp: 2 * time.Second}}},
		&fakeOracle{list: []steps.Step{{Action: "a", Service: "gmail", Operation: "sendMessage"}}},
		0,
	)
	list, err := p.Process(context.Background(), "recording.mp4")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("steps = %+v", list)
	}
}

func TestProcessorErrors(t *testing.T) {
	noFrames := NewProcessor(&fakeFrames{}, &fakeOracle{}, 0)
	if _, err := noFrames.Process(context.Background(), "empty.mp4"); err == nil {
		t.Error("expected error for empty recording")
	}

	failing := NewProcessor(
		&fakeFrames{frames: []Frame{{}}},
		&fakeOracle{err: fmt.Errorf("model unavailable")},
		0,
	)
	if _, err := failing.Process(context.Background(), "rec.mp4"); err == nil {
		t.Error("expected oracle error to propagate")
	}
}
