// Package assert implements PromptForge's declarative assertion evaluators:
// exact_match, contains, regex, json_valid, json_schema, length, and their
// aggregation into a single grading verdict.
package assert

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Assertion is one declarative check configured on an eval run.
type Assertion struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// Result is the verdict of running a single assertion.
type Result struct {
	Type   string  `json:"type"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Grading is the aggregated verdict of running every assertion configured on a run.
type Grading struct {
	Pass       bool     `json:"pass"`
	Score      float64  `json:"score"`
	Reason     string   `json:"reason"`
	Assertions []Result `json:"assertions"`
}

// Evaluator is a pure function evaluating model output against expected data and config.
type Evaluator func(output string, expected any, config map[string]any) Result

// registry maps assertion type names to their evaluator implementation.
var registry = map[string]Evaluator{
	"exact_match": evaluateExactMatch,
	"contains":    evaluateContains,
	"regex":       evaluateRegex,
	"json_valid":  evaluateJSONValid,
	"json_schema": evaluateJSONSchema,
	"length":      evaluateLength,
}

// RunAssertions evaluates every assertion against output/expected and aggregates
// the verdicts. An empty assertion list passes trivially with score 1.0.
func RunAssertions(output string, expected any, assertions []Assertion) Grading {
	if len(assertions) == 0 {
		return Grading{Pass: true, Score: 1.0, Reason: "No assertions defined", Assertions: []Result{}}
	}

	results := make([]Result, len(assertions))
	failedCount := 0
	scoreTotal := 0.0

	for i, a := range assertions {
		evaluator, ok := registry[a.Type]
		if !ok {
			results[i] = Result{
				Type:   a.Type,
				Passed: false,
				Score:  0,
				Reason: fmt.Sprintf("Unknown assertion type: %s", a.Type),
			}
		} else {
			results[i] = evaluator(output, expected, a.Config)
		}

		if !results[i].Passed {
			failedCount++
		}

		scoreTotal += results[i].Score
	}

	reason := "All assertions passed"
	if failedCount > 0 {
		reason = fmt.Sprintf("%d of %d assertions failed", failedCount, len(results))
	}

	return Grading{
		Pass:       failedCount == 0,
		Score:      scoreTotal / float64(len(results)),
		Reason:     reason,
		Assertions: results,
	}
}

func evaluateExactMatch(output string, expected any, config map[string]any) Result {
	if expected == nil {
		return Result{Type: "exact_match", Passed: false, Score: 0, Reason: "No expected output provided"}
	}

	expectedStr := fmt.Sprint(expected)
	caseSensitive := configBool(config, "case_sensitive", true)

	var passed bool
	if caseSensitive {
		passed = output == expectedStr
	} else {
		passed = strings.EqualFold(output, expectedStr)
	}

	reason := "Output does not match expected"
	if passed {
		reason = "Output matches expected"
	}

	return Result{Type: "exact_match", Passed: passed, Score: scoreOf(passed), Reason: reason}
}

func evaluateContains(output string, expected any, config map[string]any) Result {
	substring, ok := config["substring"]
	if !ok || substring == nil {
		substring = expected
	}

	if substring == nil {
		return Result{Type: "contains", Passed: false, Score: 0, Reason: "No substring to check"}
	}

	substringStr := fmt.Sprint(substring)
	caseSensitive := configBool(config, "case_sensitive", true)

	var passed bool
	if caseSensitive {
		passed = strings.Contains(output, substringStr)
	} else {
		passed = strings.Contains(strings.ToLower(output), strings.ToLower(substringStr))
	}

	verb := "does not contain"
	if passed {
		verb = "contains"
	}

	return Result{
		Type:   "contains",
		Passed: passed,
		Score:  scoreOf(passed),
		Reason: fmt.Sprintf("Output %s '%s'", verb, substringStr),
	}
}

func evaluateRegex(output string, _ any, config map[string]any) Result {
	pattern, _ := config["pattern"].(string)

	if !configBool(config, "case_sensitive", true) {
		pattern = "(?i)" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{
			Type:   "regex",
			Passed: false,
			Score:  0,
			Reason: fmt.Sprintf("Invalid regex pattern: %s", err.Error()),
		}
	}

	passed := re.MatchString(output)

	verb := "does not match"
	if passed {
		verb = "matches"
	}

	return Result{
		Type:   "regex",
		Passed: passed,
		Score:  scoreOf(passed),
		Reason: fmt.Sprintf("Output %s pattern '%s'", verb, pattern),
	}
}

func evaluateJSONValid(output string, _ any, _ map[string]any) Result {
	var v any
	if err := json.Unmarshal([]byte(output), &v); err != nil {
		return Result{
			Type:   "json_valid",
			Passed: false,
			Score:  0,
			Reason: fmt.Sprintf("Output is not valid JSON: %s", err.Error()),
		}
	}

	return Result{Type: "json_valid", Passed: true, Score: 1.0, Reason: "Output is valid JSON"}
}

func evaluateJSONSchema(output string, _ any, config map[string]any) Result {
	var parsed any
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return Result{
			Type:   "json_schema",
			Passed: false,
			Score:  0,
			Reason: fmt.Sprintf("Output is not valid JSON: %s", err.Error()),
		}
	}

	schemaValue, ok := config["schema"]
	if !ok {
		schemaValue = map[string]any{}
	}

	schema, err := compileSchema(schemaValue)
	if err != nil {
		return Result{
			Type:   "json_schema",
			Passed: false,
			Score:  0,
			Reason: fmt.Sprintf("Invalid JSON schema: %s", err.Error()),
		}
	}

	if err := schema.Validate(parsed); err != nil {
		return Result{
			Type:   "json_schema",
			Passed: false,
			Score:  0,
			Reason: fmt.Sprintf("Output does not match schema: %s", err.Error()),
		}
	}

	return Result{Type: "json_schema", Passed: true, Score: 1.0, Reason: "Output matches JSON schema"}
}

// compileSchema compiles a schema given as a generic map into a jsonschema.Schema,
// freshly each call since schemas are small and evaluated once per assertion.
func compileSchema(schemaValue any) (*jsonschema.Schema, error) {
	const schemaResource = "eval-assertion-schema.json"

	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource(schemaResource, schemaValue); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return schema, nil
}

func evaluateLength(output string, _ any, config map[string]any) Result {
	minLength := configInt(config, "min_length", 0)
	maxLength := configInt(config, "max_length", -1)

	length := len(output)
	passed := length >= minLength && (maxLength < 0 || length <= maxLength)

	bound := "outside"
	if passed {
		bound = "within"
	}

	maxDisplay := "+Inf"
	if maxLength >= 0 {
		maxDisplay = fmt.Sprint(maxLength)
	}

	return Result{
		Type:   "length",
		Passed: passed,
		Score:  scoreOf(passed),
		Reason: fmt.Sprintf("Output length %d is %s bounds [%d, %s]", length, bound, minLength, maxDisplay),
	}
}

func scoreOf(passed bool) float64 {
	if passed {
		return 1.0
	}

	return 0.0
}

func configBool(config map[string]any, key string, fallback bool) bool {
	v, ok := config[key]
	if !ok {
		return fallback
	}

	b, ok := v.(bool)
	if !ok {
		return fallback
	}

	return b
}

func configInt(config map[string]any, key string, fallback int) int {
	v, ok := config[key]
	if !ok {
		return fallback
	}

	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}
