package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"storefront/pkg/domain"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// CodeLength is the number of digits in a verification code.
const CodeLength = 6

// RegisterRequest carries the registration form.
type RegisterRequest struct {
	FullName        string          `validate:"required"`
	Email           string          `validate:"required,email"`
	PhoneNumber     string          `validate:"required"`
	Password        string          `validate:"required,min=8"`
	ConfirmPassword string          `validate:"required,eqfield=Password"`
	Role            domain.UserRole `validate:"omitempty,oneof=user admin"`
}

func (r RegisterRequest) normalized() RegisterRequest {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	r.Role = domain.UserRole(strings.ToLower(strings.TrimSpace(string(r.Role))))
	if r.Role == "" {
		r.Role = domain.RoleUser
	}
	return r
}

type loginRequest struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type codeRequest struct {
	Code string `validate:"required,otpcode"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("otpcode", func(fl validator.FieldLevel) bool {
		return isCode(fl.Field().String())
	})
	return v
}

func isCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

var fieldLabels = map[string]string{
	"FullName":        "Full name",
	"Email":           "Email",
	"PhoneNumber":     "Phone number",
	"Password":        "Password",
	"ConfirmPassword": "Password confirmation",
	"Role":            "Role",
	"Code":            "Verification code",
}

// check validates v and returns the first failure as a validation *Error.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &Error{Kind: KindValidation, Message: "Invalid input.", Err: err}
	}
	fe := fieldErrs[0]
	return &Error{Kind: KindValidation, Field: fe.Field(), Message: messageFor(fe), Err: err}
}

func messageFor(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return label + " is required."
	case "email":
		return "Please enter a valid email address."
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", label, fe.Param())
	case "eqfield":
		return "Passwords do not match."
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "otpcode":
		return fmt.Sprintf("%s must be exactly %d digits.", label, CodeLength)
	default:
		return label + " is invalid."
	}
}
