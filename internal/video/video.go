// Package video turns a screen recording into a raw step list: frames are
// sampled from the source by a frame producer, and a vision-capable model
// infers which workflow actions the recording shows.
package video

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/showrun-ai/showrun/internal/llm"
	"github.com/showrun-ai/showrun/internal/protocol"
	"github.com/showrun-ai/showrun/internal/steps"
)

// Frame is one sampled image plus its offset into the recording.
type Frame struct {
	Image     []byte        `json:"-"`
	MIMEType  string        `json:"mime_type"`
	Timestamp time.Duration `json:"timestamp"`
}

// FrameProducer samples frames from a recording at a fixed interval.
type FrameProducer interface {
	ExtractFrames(ctx context.Context, sourceRef string, interval time.Duration) ([]Frame, error)
}

// StepOracle infers the recorded workflow actions from sampled frames.
type StepOracle interface {
	InferSteps(ctx context.Context, frames []Frame) ([]steps.Step, error)
}

// Processor ties frame extraction and step inference together.
type Processor struct {
	frames   FrameProducer
	oracle   StepOracle
	interval time.Duration
}

// NewProcessor wires a processor. Interval zero defaults to one frame per
// two seconds.
func NewProcessor(frames FrameProducer, oracle StepOracle, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Processor{frames: frames, oracle: oracle, interval: interval}
}

// Process samples the recording and returns the inferred raw step list.
func (p *Processor) Process(ctx context.Context, sourceRef string) ([]steps.Step, error) {
	frames, err := p.frames.ExtractFrames(ctx, sourceRef, p.interval)
	if err != nil {
		return nil, fmt.Errorf("extract frames from %s: %w", sourceRef, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("recording %s produced no frames", sourceRef)
	}
	log.Printf("[video] sampled %d frame(s) from %s", len(frames), sourceRef)

	list, err := p.oracle.InferSteps(ctx, frames)
	if err != nil {
		return nil, fmt.Errorf("infer steps: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("no workflow steps recognized in %s", sourceRef)
	}
	log.Printf("[video] inferred %d step(s) from %s", len(list), sourceRef)
	return list, nil
}

// LLMOracle asks a vision model to describe the recorded actions as a JSON
// step list. Models wrap the JSON in prose more often than not, so the
// array is located inside the raw response rather than decoded directly.
type LLMOracle struct {
	provider llm.Provider
}

// NewLLMOracle builds an oracle over the given provider.
func NewLLMOracle(provider llm.Provider) *LLMOracle {
	return &LLMOracle{provider: provider}
}

const oraclePrompt = `These frames were sampled in order from a screen recording of someone performing a task.
Describe the task as a JSON array of steps. Each step: {"action": "...", "service": "...", "operation": "...", "parameters": {...}}.
Use service/operation pairs like googleSheets/readRange or gmail/sendMessage.
Leave a parameter out rather than inventing a value you cannot see.
Answer with the JSON array only.`

// InferSteps runs the vision prompt and extracts the step array from the
// model's answer.
func (o *LLMOracle) InferSteps(ctx context.Context, frames []Frame) ([]steps.Step, error) {
	resp, err := o.provider.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: oraclePrompt,
		Messages:     framesToMessages(frames),
	})
	if err != nil {
		return nil, fmt.Errorf("vision call: %w", err)
	}
	return ExtractSteps(resp.Content)
}

// ExtractSteps locates the first JSON step array inside model prose and
// decodes it.
func ExtractSteps(raw string) ([]steps.Step, error) {
	candidate := raw
	if !gjson.Valid(candidate) {
		arr, ok := firstArray(raw)
		if !ok {
			return nil, fmt.Errorf("no JSON array in model output")
		}
		candidate = arr
	}
	if !gjson.Valid(candidate) {
		return nil, fmt.Errorf("model output is not valid JSON")
	}

	parsed := gjson.Parse(candidate)
	if !parsed.IsArray() {
		// some models wrap the array in an object
		if arr := parsed.Get("steps"); arr.IsArray() {
			parsed = arr
		} else {
			return nil, fmt.Errorf("model output is not a step array")
		}
	}

	var out []steps.Step
	for _, item := range parsed.Array() {
		s := steps.Step{
			Action:    item.Get("action").String(),
			Service:   item.Get("service").String(),
			Operation: item.Get("operation").String(),
		}
		if params := item.Get("parameters"); params.IsObject() {
			s.Parameters = map[string]interface{}{}
			params.ForEach(func(k, v gjson.Result) bool {
				s.Parameters[k.String()] = v.Value()
				return true
			})
		}
		if !s.Valid() {
			log.Printf("[video] dropping malformed inferred step: %q", item.Raw)
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model output contained no usable steps")
	}
	return out, nil
}

// firstArray pulls the first balanced top-level array out of surrounding
// prose.
func firstArray(raw string) (string, bool) {
	start, depth := -1, 0
	for i, r := range raw {
		switch r {
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			depth--
			if depth == 0 && start >= 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// framesToMessages encodes the sampled frames as one user message. Frames
// travel base64-inline; the provider layer places them into its wire
// format's image slots.
func framesToMessages(frames []Frame) []protocol.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "%d frames follow, in recording order.\n", len(frames))
	for i, f := range frames {
		mime := f.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		fmt.Fprintf(&b, "frame %d @ %s: data:%s;base64,%s\n",
			i, f.Timestamp, mime, base64.StdEncoding.EncodeToString(f.Image))
	}
	return []protocol.Message{{Role: "user", Content: b.String()}}
}
