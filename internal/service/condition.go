package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelsec/agentgate/api/schemas"
)

// Operand is one side of a binary condition: either a reference into
// recorded action state ("node") or a literal value ("primitive").
type Operand struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

const (
	operandNode      = "node"
	operandPrimitive = "primitive"
)

// Condition is either a binary comparison (left/op/right set) or a field
// predicate (field/description set). The parser model emits exactly one of
// the two shapes.
type Condition struct {
	Left  *Operand `json:"left,omitempty"`
	Op    string   `json:"op,omitempty"`
	Right *Operand `json:"right,omitempty"`

	Field       *Operand `json:"field,omitempty"`
	Description string   `json:"description,omitempty"`
}

// IsBinary reports whether the condition is a binary comparison.
func (c Condition) IsBinary() bool { return c.Left != nil && c.Right != nil }

// ParsedConditions is the structured form of a natural-language check.
type ParsedConditions struct {
	Conditions []Condition `json:"conditions"`
	Logic      string      `json:"logic"`
}

// ComparisonResponse is the verdict for one condition or the aggregate.
type ComparisonResponse struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

const conditionParserPrompt = `You are a condition parsing agent. Your task is to parse natural language instructions into structured conditions. Each condition can be either a binary comparison or a field predicate.

For binary comparisons:
- Use the 'left', 'op', and 'right' fields.
- Each operand must include a 'type' field, which is either 'node' or 'primitive', and a 'value' string.
- 'node' type means it refers to a field in the format like 'node.1.field_b'.
- 'primitive' means a direct literal value like '30', '0', or 'true'.

For field predicates:
- Use 'field' as an object with type='node' and 'value', and 'description' as free text.

ALWAYS return a JSON object with keys 'conditions' (list) and 'logic' ('and' or 'or').

Example:
Input: 'If <node>1.field_b</node> < <value>3</value> and <node>4.field_e</node> == <value>0</value>'
Output:
{
  "conditions": [
    {"left": {"type": "node", "value": "node.1.field_b"}, "op": "<", "right": {"type": "primitive", "value": "3"}},
    {"left": {"type": "node", "value": "node.4.field_e"}, "op": "==", "right": {"type": "primitive", "value": "0"}}
  ],
  "logic": "and"
}

ALWAYS use exact field names, and do not invent any values or formats.`

const conditionComparePrompt = `Evaluate the condition using the provided values. Return a JSON object {"result": "true"|"false", "reason": "..."} and explain your reasoning clearly.`

var nodeAddressRe = regexp.MustCompile(`^node\.(\d+)\.(\w+)$`)

// ParseNodeAddress splits a "node.<index>.<field>" reference.
func ParseNodeAddress(addr string) (int, string, error) {
	m := nodeAddressRe.FindStringSubmatch(addr)
	if m == nil {
		return 0, "", fmt.Errorf("invalid field reference: %q", addr)
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("invalid field reference index in %q: %w", addr, err)
	}
	return index, m[2], nil
}

// ResolveData reads one field from the recorded state of a prior action.
func ResolveData(state []map[string]any, index int, field string) (any, error) {
	if index < 0 || index >= len(state) {
		return nil, fmt.Errorf("index %d out of range for state of length %d", index, len(state))
	}
	value, ok := state[index][field]
	if !ok {
		return nil, fmt.Errorf("field %q not in state[%d]", field, index)
	}
	return value, nil
}

// CollectUnresolvedFields lists every node reference the conditions use.
func CollectUnresolvedFields(pc ParsedConditions) []string {
	fields := map[string]struct{}{}
	for _, cond := range pc.Conditions {
		if cond.IsBinary() {
			if cond.Left.Type == operandNode {
				fields[cond.Left.Value] = struct{}{}
			}
			if cond.Right.Type == operandNode {
				fields[cond.Right.Value] = struct{}{}
			}
		} else if cond.Field != nil {
			fields[cond.Field.Value] = struct{}{}
		}
	}
	out := make([]string, 0, len(fields))
	for f := range fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ConditionResolver evaluates natural-language conditions against recorded
// action state. The LLM does the parsing and the per-condition judgement;
// everything in between is deterministic.
type ConditionResolver struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// NewConditionResolver wires a resolver to an LLM handle.
func NewConditionResolver(client schemas.LLMClient, logger *zap.Logger) *ConditionResolver {
	return &ConditionResolver{
		client: client,
		logger: logger.Named("condition_resolver"),
	}
}

// ParseInstruction asks the model for structured conditions and resolves
// every node reference against the state slice.
func (r *ConditionResolver) ParseInstruction(ctx context.Context, state []map[string]any, instruction string) (map[string]any, ParsedConditions, error) {
	raw, err := r.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: conditionParserPrompt,
		UserPrompt:   instruction,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true},
	})
	if err != nil {
		return nil, ParsedConditions{}, fmt.Errorf("condition parsing failed: %w", err)
	}

	var parsed ParsedConditions
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, ParsedConditions{}, fmt.Errorf("failed to decode parsed conditions: %w", err)
	}

	compareData := map[string]any{}
	for _, addr := range CollectUnresolvedFields(parsed) {
		index, field, err := ParseNodeAddress(addr)
		if err != nil {
			return nil, ParsedConditions{}, err
		}
		value, err := ResolveData(state, index, field)
		if err != nil {
			r.logger.Error("Failed to resolve condition data", zap.String("address", addr), zap.Error(err))
			return nil, ParsedConditions{}, err
		}
		compareData[addr] = value
	}

	r.logger.Info("Parsed conditions", zap.Int("count", len(parsed.Conditions)), zap.String("logic", parsed.Logic))
	return compareData, parsed, nil
}

// Compare judges every condition individually and combines the verdicts with
// the parsed AND/OR logic.
func (r *ConditionResolver) Compare(ctx context.Context, compareData map[string]any, parsed ParsedConditions) (ComparisonResponse, error) {
	operandValue := func(o *Operand) (any, error) {
		if o.Type == operandNode {
			v, ok := compareData[o.Value]
			if !ok {
				return nil, fmt.Errorf("key %q not found in compare data", o.Value)
			}
			return v, nil
		}
		return o.Value, nil
	}

	results := make([]ComparisonResponse, 0, len(parsed.Conditions))
	for i, cond := range parsed.Conditions {
		var prompt strings.Builder
		if cond.IsBinary() {
			left, err := operandValue(cond.Left)
			if err != nil {
				return ComparisonResponse{}, err
			}
			right, err := operandValue(cond.Right)
			if err != nil {
				return ComparisonResponse{}, err
			}
			fmt.Fprintf(&prompt, "Condition: %s %s %s\n", cond.Left.Value, cond.Op, cond.Right.Value)
			fmt.Fprintf(&prompt, "Values: %v %s %v", left, cond.Op, right)
		} else {
			content := compareData[cond.Field.Value]
			fmt.Fprintf(&prompt, "Does this value match the description: %q?\n", cond.Description)
			fmt.Fprintf(&prompt, "Value: %v", content)
		}

		raw, err := r.client.Generate(ctx, schemas.GenerationRequest{
			SystemPrompt: conditionComparePrompt,
			UserPrompt:   prompt.String(),
			Options:      schemas.GenerationOptions{ForceJSONFormat: true},
		})
		if err != nil {
			return ComparisonResponse{}, fmt.Errorf("condition %d comparison failed: %w", i+1, err)
		}

		var verdict ComparisonResponse
		if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
			return ComparisonResponse{}, fmt.Errorf("condition %d returned malformed verdict: %w", i+1, err)
		}
		r.logger.Info("Condition judged", zap.Int("condition", i+1), zap.String("result", verdict.Result))
		results = append(results, verdict)
	}

	logic := strings.ToUpper(parsed.Logic)
	final := logic != "OR"
	for _, res := range results {
		ok := res.Result == "true"
		if logic == "OR" {
			final = final || ok
		} else {
			final = final && ok
		}
	}

	reasons := make([]string, len(results))
	for i, res := range results {
		reasons[i] = fmt.Sprintf("Condition %d: %s", i+1, res.Reason)
	}

	verdict := ComparisonResponse{
		Result: "false",
		Reason: fmt.Sprintf("Evaluated with '%s' logic:\n\n%s", logic, strings.Join(reasons, "\n\n")),
	}
	if final {
		verdict.Result = "true"
	}
	return verdict, nil
}

// Resolve is the entry point: parse, resolve references, judge, aggregate.
func (r *ConditionResolver) Resolve(ctx context.Context, state []map[string]any, instruction string) (bool, error) {
	compareData, parsed, err := r.ParseInstruction(ctx, state, instruction)
	if err != nil {
		return false, err
	}
	result, err := r.Compare(ctx, compareData, parsed)
	if err != nil {
		return false, err
	}
	return result.Result == "true", nil
}
