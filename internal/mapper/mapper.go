// Package mapper implements MapperProcessor, the object/array reshaping
// processor: path extraction via JMESPath, dotted-path assembly into a
// result map, a closed set of scalar transforms, and configurable
// dispositions for missing-required and transform-error conditions.
package mapper

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"context"

	"github.com/jmespath/go-jmespath"

	"github.com/nugget/eventgraph/internal/engine"
	"github.com/nugget/eventgraph/internal/engine/condition"
)

// Mode selects whether the processor reshapes a single object or maps
// over an array located within the input.
type Mode string

const (
	ModeObject Mode = "object"
	ModeArray  Mode = "array"
)

// Disposition values for error_handling options.
const (
	OnMissingError = "error"
	OnMissingSkip  = "skip"
	OnMissingNull  = "null"

	OnTransformError    = "error"
	OnTransformSkip      = "skip"
	OnTransformOriginal  = "original"
)

// Mapping describes a single source->target rule, shared by object mode
// and array mode's per-item mappings.
type Mapping struct {
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	Default   any    `yaml:"default"`
	Required  bool   `yaml:"required"`
	Transform string `yaml:"transform"`
}

// ArraySettings configures array mode: where the array lives in the
// input, an optional JsonLogic filter, and the per-item mappings.
type ArraySettings struct {
	SourcePath   string    `yaml:"source_path"`
	Filter       any       `yaml:"filter"` // JsonLogic condition tree, nil for no filter
	ItemMappings []Mapping `yaml:"item_mappings"`
}

// ErrorHandling controls the disposition of mapping failures.
type ErrorHandling struct {
	OnMissingRequired string `yaml:"on_missing_required"` // error | skip | null
	OnTransformError  string `yaml:"on_transform_error"`  // error | skip | original
}

type compiledMapping struct {
	source    *jmespath.JMESPath
	expr      string
	target    string
	def       any
	required  bool
	transform string
}

// MapperProcessor is a Processor that reshapes event data according to
// its compiled mapping configuration. Path expressions are compiled once
// at construction time, not per event.
type MapperProcessor struct {
	mode          Mode
	mappings      []compiledMapping
	arraySource   *jmespath.JMESPath
	arrayFilter   *condition.Condition
	itemMappings  []compiledMapping
	errorHandling ErrorHandling
	logger        *slog.Logger
}

// New compiles mappings and returns a ready-to-use MapperProcessor, or
// an error if any JMESPath expression fails to parse.
func New(mode Mode, mappings []Mapping, arraySettings *ArraySettings, eh ErrorHandling, logger *slog.Logger) (*MapperProcessor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MapperProcessor{
		mode:          mode,
		errorHandling: eh,
		logger:        logger,
	}

	compiled, err := compileMappings(mappings)
	if err != nil {
		return nil, err
	}
	m.mappings = compiled

	if mode == ModeArray {
		if arraySettings == nil {
			return nil, fmt.Errorf("mapper: array mode requires array_settings")
		}
		src, err := jmespath.Compile(arraySettings.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("mapper: compile array source_path %q: %w", arraySettings.SourcePath, err)
		}
		m.arraySource = src

		if arraySettings.Filter != nil {
			m.arrayFilter = condition.Compile(arraySettings.Filter)
		}

		itemCompiled, err := compileMappings(arraySettings.ItemMappings)
		if err != nil {
			return nil, err
		}
		m.itemMappings = itemCompiled
	}

	return m, nil
}

func compileMappings(mappings []Mapping) ([]compiledMapping, error) {
	out := make([]compiledMapping, len(mappings))
	for i, mp := range mappings {
		path, err := jmespath.Compile(mp.Source)
		if err != nil {
			return nil, fmt.Errorf("mapper: compile source %q: %w", mp.Source, err)
		}
		out[i] = compiledMapping{
			source:    path,
			expr:      mp.Source,
			target:    mp.Target,
			def:       mp.Default,
			required:  mp.Required,
			transform: mp.Transform,
		}
	}
	return out, nil
}

// CanHandle accepts any event; the mapping is driven entirely by
// configuration, not by event type.
func (m *MapperProcessor) CanHandle(*engine.Event) bool { return true }

// Process reshapes event.Data per the compiled mapping configuration and
// returns a new computation_result event carrying the result.
func (m *MapperProcessor) Process(_ context.Context, event *engine.Event, _ *engine.Context) (*engine.Event, error) {
	var result any
	var err error

	switch m.mode {
	case ModeArray:
		result, err = m.processArray(event.Data)
	default:
		result, err = m.applyObjectMappings(m.mappings, event.Data)
	}
	if err != nil {
		return nil, err
	}

	return engine.NewEvent(engine.EventComputationResult, result), nil
}

func (m *MapperProcessor) processArray(data any) ([]map[string]any, error) {
	raw, err := m.arraySource.Search(data)
	if err != nil {
		return nil, fmt.Errorf("mapper: array source_path: %w", err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("mapper: array source_path did not resolve to an array (got %T)", raw)
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m.arrayFilter != nil {
			itemMap, _ := item.(map[string]any)
			keep, err := m.arrayFilter.Truthy(itemMap)
			if err != nil {
				return nil, fmt.Errorf("mapper: array filter: %w", err)
			}
			if !keep {
				continue
			}
		}

		mapped, err := m.applyObjectMappings(m.itemMappings, item)
		if err != nil {
			return nil, err
		}
		out = append(out, mapped)
	}
	return out, nil
}

func (m *MapperProcessor) applyObjectMappings(mappings []compiledMapping, data any) (map[string]any, error) {
	result := map[string]any{}

	for _, mp := range mappings {
		v, searchErr := mp.source.Search(data)
		missing := searchErr != nil || v == nil

		if missing {
			switch {
			case mp.required:
				switch m.errorHandling.OnMissingRequired {
				case OnMissingSkip:
					continue
				case OnMissingNull:
					v = nil
				default: // "error" or unset
					return nil, fmt.Errorf("mapper: required field %q missing (source %q)", mp.target, mp.expr)
				}
			case mp.def != nil:
				v = mp.def
			default:
				continue
			}
		}

		if mp.transform != "" && v != nil {
			tv, terr := m.applyTransform(mp.transform, v)
			if terr != nil {
				switch m.errorHandling.OnTransformError {
				case OnTransformOriginal:
					tv = v
				case OnTransformSkip:
					continue
				default: // "error" or unset
					return nil, fmt.Errorf("mapper: transform %q on %q: %w", mp.transform, mp.target, terr)
				}
			}
			v = tv
		}

		setNestedValue(result, mp.target, v)
	}

	return result, nil
}

// setNestedValue writes value at a dotted path within root, creating
// intermediate maps as needed.
func setNestedValue(root map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := root
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}

// applyTransform runs one of the closed set of scalar transforms.
// Unknown transform names are a no-op (with a warning), matching the
// source design's "unknown transforms are a no-op with a warning" rule.
func (m *MapperProcessor) applyTransform(name string, v any) (any, error) {
	switch name {
	case "string":
		return toStringValue(v), nil
	case "number":
		return parseNumber(toStringValue(v))
	case "integer":
		f, err := strconv.ParseFloat(toStringValue(v), 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %v", v)
		}
		return int64(f), nil
	case "float":
		f, err := strconv.ParseFloat(toStringValue(v), 64)
		if err != nil {
			return nil, fmt.Errorf("not a float: %v", v)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(toStringValue(v))
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %v", v)
		}
		return b, nil
	case "lowercase":
		return strings.ToLower(toStringValue(v)), nil
	case "uppercase":
		return strings.ToUpper(toStringValue(v)), nil
	case "trim":
		return strings.TrimSpace(toStringValue(v)), nil
	default:
		m.logger.Warn("mapper: unknown transform, passing value through unchanged", "transform", name)
		return v, nil
	}
}

func parseNumber(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %s", s)
	}
	if f == float64(int64(f)) {
		return int64(f), nil
	}
	return f, nil
}

func toStringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
