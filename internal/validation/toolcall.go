package validation

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

const (
	maxToolNameLength     = 256
	maxArgumentsDepth     = 10
	maxArgumentsByteSize  = 1_000_000
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ToolCallValidator checks a parsed tool call before it is dispatched: shape
// of the name, membership in the session's discovered tools, and bounds on
// the arguments payload. When the matching ToolDefinition carries a
// parameters schema, arguments are additionally validated against it.
type ToolCallValidator struct{}

func NewToolCallValidator() *ToolCallValidator { return &ToolCallValidator{} }

func (v *ToolCallValidator) Validate(call entity.ToolCall, session *entity.Session) error {
	if call.Name == "" || len(call.Name) > maxToolNameLength || !toolNamePattern.MatchString(call.Name) {
		return pkgerrors.NewInvalidInputError("tool call name is empty, too long, or contains invalid characters")
	}

	def, ok := findToolDefinition(session, call.Name)
	if !ok {
		return pkgerrors.NewNotFoundError("tool \"" + call.Name + "\" is not available in this session")
	}

	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		return pkgerrors.NewInvalidInputError("tool call arguments are not serializable: " + err.Error())
	}
	if len(raw) > maxArgumentsByteSize {
		return pkgerrors.NewParameterBoundsError("tool call arguments exceed the 1MB size limit")
	}
	if jsonDepth(call.Arguments, 0) > maxArgumentsDepth {
		return pkgerrors.NewParameterBoundsError("tool call arguments exceed the maximum nesting depth of 10")
	}

	if len(def.ParametersSchema) > 0 {
		if err := validateAgainstSchema(def.ParametersSchema, raw); err != nil {
			return pkgerrors.NewSchemaValidationError("tool call arguments do not match the tool's parameter schema", err)
		}
	}

	return nil
}

func findToolDefinition(session *entity.Session, name string) (entity.ToolDefinition, bool) {
	for _, t := range session.AvailableTools {
		if t.Name == name {
			return t, true
		}
	}
	return entity.ToolDefinition{}, false
}

func jsonDepth(v interface{}, current int) int {
	switch val := v.(type) {
	case map[string]interface{}:
		deepest := current
		for _, child := range val {
			if d := jsonDepth(child, current+1); d > deepest {
				deepest = d
			}
		}
		return deepest
	case []interface{}:
		deepest := current
		for _, child := range val {
			if d := jsonDepth(child, current+1); d > deepest {
				deepest = d
			}
		}
		return deepest
	default:
		return current
	}
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

func validateAgainstSchema(schema json.RawMessage, arguments json.RawMessage) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-parameters.json", bytesReader(schema)); err != nil {
		return err
	}
	compiled, err := compiler.Compile("tool-parameters.json")
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(arguments, &doc); err != nil {
		return err
	}
	return compiled.Validate(doc)
}
