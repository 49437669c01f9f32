package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"runcoach/internal/types"
)

// Validator wraps go-playground/validator with the runcoach tags:
//
//	sync_range    a selector accepted by a sync run
//	stats_period  a period the stats endpoint reports
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator builds a Validator. Field names in errors use the json tag.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	mustRegister(v, "sync_range", oneOfSelectors(types.SyncRanges))
	mustRegister(v, "stats_period", oneOfSelectors(types.StatsPeriods))

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func oneOfSelectors(allowed []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return slices.Contains(allowed, fl.Field().String())
	}
}

// ValidateStruct validates s and translates failures into an AppError. A
// missing required field maps to validation_missing_required_field; any
// other rule to validation_invalid_field. Details carry a message per
// field.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	code := types.ErrCodeValidationInvalidField
	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			code = types.ErrCodeValidationMissingField
		}
		fields[fe.Field()] = describe(fe)
	}

	first := fieldErrs[0]
	return types.NewAppErrorWithDetails(code, first.Field()+": "+describe(first), err, map[string]any{"fields": fields})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "sync_range":
		return "must be one of: " + strings.Join(types.SyncRanges, ", ")
	case "stats_period":
		return "must be one of: " + strings.Join(types.StatsPeriods, ", ")
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
