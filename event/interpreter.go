package event

import (
	"encoding/json"
	"math"
)

// fallbackResultKey wraps result strings that are not themselves JSON objects.
const fallbackResultKey = "raw"

// Interpret maps one decoded payload to a store action. It returns false for
// event types that carry no state change: run-level markers, the trailing
// complete event, and any type this client does not know about. Unknown types
// are deliberately not an error so that newer backends remain consumable.
func Interpret(raw json.RawMessage) (Action, bool) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}

	switch p.Type {
	case TypeWorkflowStarted:
		if p.Workflow == "" {
			return nil, false
		}
		return StageAction{StageID: p.Workflow, Status: StatusRunning}, true

	case TypeWorkflowSucceeded:
		if p.Workflow == "" {
			return nil, false
		}
		a := StageAction{
			StageID: p.Workflow,
			Status:  StatusSuccess,
			Result:  normalizeResult(p.Result),
		}
		attachContext(&a, p.Context)
		return a, true

	case TypeWorkflowFailed:
		if p.Workflow == "" {
			return nil, false
		}
		res := p.Error
		if len(res) == 0 || string(res) == "null" {
			res = p.Result
		}
		a := StageAction{
			StageID: p.Workflow,
			Status:  StatusError,
			Result:  normalizeResult(res),
		}
		attachContext(&a, p.Context)
		return a, true

	case TypeSubstageStarted:
		if p.Workflow == "" || p.Substage == "" {
			return nil, false
		}
		return SubstageAction{StageID: p.Workflow, SubstageID: p.Substage, Status: StatusRunning}, true

	case TypeSubstageCompleted:
		if p.Workflow == "" || p.Substage == "" {
			return nil, false
		}
		return SubstageAction{StageID: p.Workflow, SubstageID: p.Substage, Status: StatusSuccess}, true
	}

	return nil, false
}

// IsStreamEnd reports whether the payload is the backend's end-of-stream
// marker. The marker itself carries no state change, but the run loop uses it
// to tell a graceful close apart from a dropped connection.
func IsStreamEnd(raw json.RawMessage) bool {
	var p struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return false
	}
	return p.Type == TypeComplete
}

// attachContext extracts the usage block from a terminal workflow event.
// Missing or non-numeric fields default to zero rather than failing the
// whole event.
func attachContext(a *StageAction, raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		a.TokenCost = &TokenCost{}
		return
	}
	var ctx map[string]any
	if err := json.Unmarshal(raw, &ctx); err != nil {
		a.TokenCost = &TokenCost{}
		return
	}

	a.TokenCost = &TokenCost{
		InputTokens:   asInt64(ctx["input_tokens"]),
		OutputTokens:  asInt64(ctx["output_tokens"]),
		TotalTokens:   asInt64(ctx["total_tokens"]),
		EstimatedCost: asFloat64(ctx["cost"]),
	}

	if ns, ok := ctx["duration_ns"].(float64); ok {
		ms := int64(math.Floor(ns / 1e6))
		if ms < 0 {
			ms = 0
		}
		a.DurationMS = ms
		a.HasDuration = true
	}
}

// normalizeResult turns a raw result or error payload into a map. Objects are
// used as-is. Strings that themselves parse into a JSON object are expanded;
// any other string is preserved under a fallback key. Null and absent values
// yield no result.
func normalizeResult(raw json.RawMessage) map[string]any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return obj
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var inner map[string]any
		if err := json.Unmarshal([]byte(s), &inner); err == nil && inner != nil {
			return inner
		}
		return map[string]any{fallbackResultKey: s}
	}

	// Arrays, numbers and booleans are unexpected here but preserved.
	var v any
	if err := json.Unmarshal(raw, &v); err == nil && v != nil {
		return map[string]any{fallbackResultKey: v}
	}
	return nil
}

func asInt64(v any) int64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return int64(f)
}

func asFloat64(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return f
}
