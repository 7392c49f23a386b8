package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator"
)

var (
	global        *validator.Validate
	nonDigitRegex = regexp.MustCompile(`\D`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cpf", validateCPF)
	_ = v.RegisterValidation("brphone", validateBRPhone)
	_ = v.RegisterValidation("future", validateFutureDate)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

// OnlyDigits strips everything but digits, so formatted CPFs and phone
// numbers compare equal to their raw form.
func OnlyDigits(s string) string {
	return nonDigitRegex.ReplaceAllString(s, "")
}

// ValidCPF checks the eleven-digit Brazilian tax id, including both
// verification digits. Formatting characters are ignored.
func ValidCPF(cpf string) bool {
	clean := OnlyDigits(cpf)
	if len(clean) != 11 {
		return false
	}
	if strings.Count(clean, string(clean[0])) == 11 {
		return false
	}

	digit := func(upTo int) int {
		sum := 0
		for i := 0; i < upTo; i++ {
			sum += int(clean[i]-'0') * (upTo + 1 - i)
		}
		rem := (sum * 10) % 11
		if rem == 10 {
			rem = 0
		}
		return rem
	}

	return digit(9) == int(clean[9]-'0') && digit(10) == int(clean[10]-'0')
}

// ValidPhone accepts Brazilian phone numbers with 10 or 11 digits.
func ValidPhone(phone string) bool {
	n := len(OnlyDigits(phone))
	return n >= 10 && n <= 11
}

func validateCPF(fl validator.FieldLevel) bool {
	return ValidCPF(fl.Field().String())
}

func validateBRPhone(fl validator.FieldLevel) bool {
	return ValidPhone(fl.Field().String())
}

func validateFutureDate(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(time.Now())
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "cpf":
		msg = "Invalid CPF"
	case "brphone":
		msg = "Invalid phone number"
	case "future":
		msg = "Date must be in the future"
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
