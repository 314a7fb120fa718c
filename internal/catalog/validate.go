package catalog

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fjod/storefront/internal/domain"
)

var validate = validator.New()

// validateStruct runs the struct tags and converts failures into
// domain.ValidationErrors.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, e := range fieldErrs {
		out = append(out, domain.ValidationError{
			Field:   strings.ToLower(e.Field()),
			Message: validationMessage(e),
		})
	}
	return out
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must not be empty"
	case "max":
		if e.Kind().String() == "slice" {
			return "must have at most " + e.Param() + " entries"
		}
		return "must be at most " + e.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}

func normalizeInput(in domain.ProductInput) domain.ProductInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Category = strings.TrimSpace(in.Category)
	return in
}

func normalizePatch(p domain.ProductPatch) domain.ProductPatch {
	trim := func(s *string, upper bool) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		if upper {
			v = strings.ToUpper(v)
		}
		return &v
	}
	p.Title = trim(p.Title, false)
	p.Description = trim(p.Description, false)
	p.Code = trim(p.Code, true)
	p.Category = trim(p.Category, false)
	return p
}
