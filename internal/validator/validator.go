package validator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/dshills/llmdiag/pkg/types"
)

var (
	// ErrNotJSON is returned when the cleaned response cannot be decoded
	ErrNotJSON = errors.New("response is not valid JSON")
	// ErrNotArray is returned when the response decodes to something other than an array
	ErrNotArray = errors.New("response is not a JSON array")
)

// RequiredFields lists the keys every issue object must carry, in check order
var RequiredFields = []string{"fileName", "line", "column", "length", "message", "lineContent"}

// ItemError describes why a single array element was dropped
type ItemError struct {
	Index  int
	Field  string
	Reason string
}

func (e ItemError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("item %d: %s: %s", e.Index, e.Field, e.Reason)
}

// Result is the outcome of validating one model response.
// Err is set only when the whole batch was rejected; Issues is then empty.
type Result struct {
	Issues  []types.Issue
	Err     error
	Skipped []ItemError
}

// OK reports whether the response was a well-formed array
func (r Result) OK() bool {
	return r.Err == nil
}

type options struct {
	logger *slog.Logger
	source string
}

// Option configures Validate
type Option func(*options)

// WithLogger sets where dropped items and rejected batches are reported
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSource tags log lines with the document the response belongs to
func WithSource(name string) Option {
	return func(o *options) {
		o.source = name
	}
}

// StripFences removes a surrounding markdown code fence, if any
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Validate turns an untrusted model response into issues. It never panics;
// malformed items are skipped and reported in Result.Skipped.
func Validate(raw string, opts ...Option) Result {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if o.source != "" {
		log = log.With("document", o.source)
	}

	cleaned := StripFences(raw)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()
	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		log.Error("failed to parse model response as JSON", "error", err, "raw", raw)
		return Result{Err: fmt.Errorf("%w: %v", ErrNotJSON, err)}
	}
	// Trailing data after the first value is as bad as a syntax error
	if _, err := dec.Token(); err != io.EOF {
		log.Error("failed to parse model response as JSON", "error", "trailing data", "raw", raw)
		return Result{Err: fmt.Errorf("%w: trailing data after value", ErrNotJSON)}
	}

	items, ok := parsed.([]any)
	if !ok {
		log.Error("model response is not an array", "type", jsonType(parsed))
		return Result{Err: fmt.Errorf("%w: got %s", ErrNotArray, jsonType(parsed))}
	}

	res := Result{Issues: make([]types.Issue, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			ie := ItemError{Index: i, Reason: "not an object: " + jsonType(item)}
			log.Error("dropping model issue", "index", i, "reason", ie.Reason)
			res.Skipped = append(res.Skipped, ie)
			continue
		}

		issue, ie := validateItem(i, obj)
		if ie != nil {
			log.Error("dropping model issue", "index", i, "field", ie.Field, "reason", ie.Reason)
			res.Skipped = append(res.Skipped, *ie)
			continue
		}
		res.Issues = append(res.Issues, issue)
	}

	log.Info("validated model response", "issues", len(res.Issues), "skipped", len(res.Skipped))
	return res
}

func validateItem(i int, obj map[string]any) (types.Issue, *ItemError) {
	for _, f := range RequiredFields {
		if _, ok := obj[f]; !ok {
			return types.Issue{}, &ItemError{Index: i, Field: f, Reason: "missing required field"}
		}
	}

	fileName, ok := obj["fileName"].(string)
	if !ok {
		return types.Issue{}, &ItemError{Index: i, Field: "fileName", Reason: "expected string, got " + jsonType(obj["fileName"])}
	}

	var ints [3]int
	for k, f := range []string{"line", "column", "length"} {
		n, ok := positiveInt(obj[f])
		if !ok {
			return types.Issue{}, &ItemError{Index: i, Field: f, Reason: fmt.Sprintf("expected positive integer, got %v", obj[f])}
		}
		ints[k] = n
	}

	message, ok := obj["message"].(string)
	if !ok || strings.TrimSpace(message) == "" {
		return types.Issue{}, &ItemError{Index: i, Field: "message", Reason: "expected non-empty string"}
	}

	lineContent, ok := obj["lineContent"].(string)
	if !ok {
		return types.Issue{}, &ItemError{Index: i, Field: "lineContent", Reason: "expected string, got " + jsonType(obj["lineContent"])}
	}

	return types.Issue{
		FileName:    fileName,
		Line:        ints[0],
		Column:      ints[1],
		Length:      ints[2],
		Message:     strings.TrimSpace(message),
		LineContent: lineContent,
	}, nil
}

// positiveInt accepts JSON numbers with an integral value >= 1, so 5 and 5.0
// are both fine while 5.5 is not.
func positiveInt(v any) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := num.Int64(); err == nil {
		if n < 1 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	}
	f, err := num.Float64()
	if err != nil || f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
