package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/sheets"
	"github.com/showrun-ai/showrun/internal/steps"
	"github.com/showrun-ai/showrun/internal/store"
)

// Capability names the model can invoke during acquisition.
const (
	toolInspectSheet  = "inspect_sheet"
	toolReadSheet     = "read_sheet"
	toolSaveParameter = "save_workflow_parameter"
	toolUpdateSteps   = "update_workflow_steps"
	toolMarkComplete  = "mark_workflow_complete"
)

const maxReadCells = 500

// capabilityMenu is the fixed tool set every acquisition turn offers.
func capabilityMenu() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        toolInspectSheet,
			Description: "Look at a spreadsheet's structure: column headers plus a few sample rows. Use this before asking the user which column holds their data.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"spreadsheet_id": map[string]interface{}{"type": "string", "description": "Spreadsheet identifier"},
					"sample_rows":    map[string]interface{}{"type": "integer", "description": "How many data rows to sample (default 3)"},
				},
				"required": []string{"spreadsheet_id"},
			},
		},
		{
			Name:        toolReadSheet,
			Description: "Read a bounded A1-style range from a spreadsheet, e.g. C2:C20.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"spreadsheet_id": map[string]interface{}{"type": "string"},
					"range":          map[string]interface{}{"type": "string", "description": "A1-style range, keep it small"},
				},
				"required": []string{"spreadsheet_id", "range"},
			},
		},
		{
			Name:        toolSaveParameter,
			Description: "Record one answered parameter for one step. Call this every time the user supplies a concrete value.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"step_index": map[string]interface{}{"type": "integer", "description": "Zero-based index into the step list"},
					"field_name": map[string]interface{}{"type": "string"},
					"value":      map[string]interface{}{"description": "The answered value"},
				},
				"required": []string{"step_index", "field_name", "value"},
			},
		},
		{
			Name:        toolUpdateSteps,
			Description: "Replace the whole step list when the user changes what the workflow should do. Supply the complete new list, not a diff.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"steps": map[string]interface{}{
						"type":        "array",
						"description": "Full replacement step list",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"action":     map[string]interface{}{"type": "string"},
								"service":    map[string]interface{}{"type": "string"},
								"operation":  map[string]interface{}{"type": "string"},
								"parameters": map[string]interface{}{"type": "object"},
							},
							"required": []string{"service", "operation"},
						},
					},
				},
				"required": []string{"steps"},
			},
		},
		{
			Name:        toolMarkComplete,
			Description: "Declare the workflow ready: every required parameter is collected. This is the only way to finish the conversation; never rely on phrasing alone.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// session is one turn's mutable working state over a draft record.
type session struct {
	rec      *store.Record
	complete bool
	modified bool
	// inspectSheet is capped to once per turn to bound exploration cost
	inspected bool
}

// dispatch runs one capability invocation against the session. Malformed
// arguments fail only that invocation; the turn carries on.
func (l *Loop) dispatch(ctx context.Context, sess *session, call protocol.ToolUseBlock) protocol.ToolResponse {
	switch call.Name {
	case toolInspectSheet:
		return l.inspectSheet(ctx, sess, call.Input)
	case toolReadSheet:
		return l.readSheet(ctx, sess, call.Input)
	case toolSaveParameter:
		return l.saveParameter(sess, call.Input)
	case toolUpdateSteps:
		return l.updateSteps(sess, call.Input)
	case toolMarkComplete:
		sess.complete = true
		return protocol.OK(map[string]string{"status": "complete"})
	default:
		if l.hub != nil && l.hub.Owns(call.Name) {
			return l.hub.Call(ctx, call.Name, call.Input)
		}
		return protocol.Fail(fmt.Errorf("unknown capability %q", call.Name), false)
	}
}

func (l *Loop) inspectSheet(ctx context.Context, sess *session, input json.RawMessage) protocol.ToolResponse {
	if sess.inspected {
		return protocol.Fail(fmt.Errorf("inspect_sheet already used this turn"), false)
	}
	var args struct {
		SpreadsheetID string `json:"spreadsheet_id"`
		SampleRows    int    `json:"sample_rows"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
	}
	if args.SpreadsheetID == "" {
		return protocol.Fail(fmt.Errorf("spreadsheet_id is required"), false)
	}
	if args.SampleRows <= 0 {
		args.SampleRows = 3
	}
	sess.inspected = true

	info, err := sheets.Inspect(ctx, l.sheets, sess.rec.Owner, args.SpreadsheetID, args.SampleRows)
	if err != nil {
		return protocol.Fail(fmt.Errorf("inspect spreadsheet: %w", err), true)
	}
	return protocol.OK(info)
}

func (l *Loop) readSheet(ctx context.Context, sess *session, input json.RawMessage) protocol.ToolResponse {
	var args struct {
		SpreadsheetID string `json:"spreadsheet_id"`
		Range         string `json:"range"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
	}
	if args.SpreadsheetID == "" || args.Range == "" {
		return protocol.Fail(fmt.Errorf("spreadsheet_id and range are required"), false)
	}

	vr, err := l.sheets.Read(ctx, sess.rec.Owner, args.SpreadsheetID, args.Range)
	if err != nil {
		return protocol.Fail(fmt.Errorf("read %s: %w", args.Range, err), true)
	}
	cells := 0
	rows := vr.Values
	for i, row := range rows {
		cells += len(row)
		if cells > maxReadCells {
			rows = rows[:i]
			break
		}
	}
	return protocol.OK(map[string]interface{}{"range": vr.Range, "values": rows})
}

func (l *Loop) saveParameter(sess *session, input json.RawMessage) protocol.ToolResponse {
	var args struct {
		StepIndex int         `json:"step_index"`
		FieldName string      `json:"field_name"`
		Value     interface{} `json:"value"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
	}
	if args.FieldName == "" {
		return protocol.Fail(fmt.Errorf("field_name is required"), false)
	}
	if args.StepIndex < 0 || args.StepIndex >= len(sess.rec.Steps) {
		return protocol.Fail(fmt.Errorf("step_index %d outside current step list", args.StepIndex), false)
	}

	if args.FieldName == "range" {
		if s, ok := args.Value.(string); ok {
			args.Value = normalizeRange(s)
		}
	}

	if sess.rec.Collected == nil {
		sess.rec.Collected = steps.Collected{}
	}
	if sess.rec.Collected[args.StepIndex] == nil {
		sess.rec.Collected[args.StepIndex] = map[string]interface{}{}
	}
	sess.rec.Collected[args.StepIndex][args.FieldName] = args.Value
	log.Printf("[chat] saved %s for step %d of %s", args.FieldName, args.StepIndex, sess.rec.ID)
	return protocol.OK(map[string]interface{}{
		"step_index": args.StepIndex,
		"field_name": args.FieldName,
	})
}

var a1RangeRe = regexp.MustCompile(`^([A-Za-z]{1,3})(\d+):([A-Za-z]{1,3})(\d*)$`)

// defaultRangeEndRow bounds saved ranges whose end row the user never gave.
const defaultRangeEndRow = "1000"

// normalizeRange coerces a saved sheet range to the bare A1 form the
// capability clients expect: sheet-name prefixes like "Sheet1!" are
// stripped and an open-ended range such as "C2:C" gets a bounded end row.
func normalizeRange(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.LastIndex(v, "!"); i >= 0 {
		v = v[i+1:]
	}
	m := a1RangeRe.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	endRow := m[4]
	if endRow == "" {
		endRow = defaultRangeEndRow
	}
	return strings.ToUpper(m[1]) + m[2] + ":" + strings.ToUpper(m[3]) + endRow
}

func (l *Loop) updateSteps(sess *session, input json.RawMessage) protocol.ToolResponse {
	var args struct {
		Steps []steps.Step `json:"steps"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return protocol.Fail(fmt.Errorf("parse arguments: %w", err), false)
	}
	if len(args.Steps) == 0 {
		return protocol.Fail(fmt.Errorf("replacement step list is empty"), false)
	}
	for i, s := range args.Steps {
		if !s.Valid() {
			return protocol.Fail(fmt.Errorf("step %d has no service/operation", i), false)
		}
	}

	sess.rec.Steps = args.Steps
	sess.rec.Collected = pruneCollected(sess.rec.Collected, len(args.Steps))
	sess.modified = true
	log.Printf("[chat] replaced step list of %s: now %d step(s)", sess.rec.ID, len(args.Steps))
	return protocol.OK(map[string]interface{}{"steps": len(args.Steps)})
}

// pruneCollected drops answers for step indices that no longer exist.
func pruneCollected(c steps.Collected, n int) steps.Collected {
	if c == nil {
		return nil
	}
	for idx := range c {
		if idx < 0 || idx >= n {
			delete(c, idx)
		}
	}
	return c
}
