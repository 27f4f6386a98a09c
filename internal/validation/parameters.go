package validation

import (
	"github.com/localagent/runtime/internal/domain/entity"
	pkgerrors "github.com/localagent/runtime/pkg/errors"
)

// ParametersValidator enforces generation parameter bounds.
type ParametersValidator struct{}

func NewParametersValidator() *ParametersValidator { return &ParametersValidator{} }

func (v *ParametersValidator) Validate(req entity.GenerationRequest) error {
	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return pkgerrors.NewParameterBoundsError("max_tokens must be greater than 0")
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		return pkgerrors.NewParameterBoundsError("temperature must be within [0, 2]")
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return pkgerrors.NewParameterBoundsError("top_p must be within [0, 1]")
	}
	return nil
}
