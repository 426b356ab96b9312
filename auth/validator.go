package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	perrors "postbox/errors"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(v, "nospace", noSpace)
	return v
}

// mustRegister panics when a custom rule cannot be registered, so that a
// struct tag never refers to an unknown rule at request time.
func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %q validation: %v", tag, err))
	}
}

func noSpace(fl validator.FieldLevel) bool {
	return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
}

type RegisterRequest struct {
	Username string `validate:"required,max=64,nospace"`
	Password string `validate:"required"`
}

// Policy holds the rules that depend on configuration.
type Policy struct {
	// StrictPasswords enforces length and complexity on new passwords.
	StrictPasswords  bool
	MaxTitleLength   int
	MaxContentLength int
}

// Argon2 itself has no input limit; 72 bytes keeps parity with bcrypt-era clients.
const maxPasswordBytes = 72

const minStrictPasswordLength = 12

func (p Policy) ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	if len(req.Password) > maxPasswordBytes {
		return fmt.Errorf("%w: password exceeds %d bytes", perrors.ErrInvalidInput, maxPasswordBytes)
	}
	if p.StrictPasswords {
		if utf8.RuneCountInString(req.Password) < minStrictPasswordLength || !isPasswordComplex(req.Password) {
			return fmt.Errorf("%w: password must have at least %d characters with upper, lower, digit and symbol",
				perrors.ErrInvalidInput, minStrictPasswordLength)
		}
	}
	return nil
}

type MessageRequest struct {
	Title       string `validate:"required"`
	Body        string `validate:"required"`
	RecipientID string `validate:"required"`
}

func (p Policy) ValidateMessage(req MessageRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", perrors.ErrInvalidInput, err)
	}
	if p.MaxTitleLength > 0 && utf8.RuneCountInString(req.Title) > p.MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", perrors.ErrInvalidInput, p.MaxTitleLength)
	}
	if p.MaxContentLength > 0 && utf8.RuneCountInString(req.Body) > p.MaxContentLength {
		return fmt.Errorf("%w: body exceeds %d characters", perrors.ErrInvalidInput, p.MaxContentLength)
	}
	return nil
}

func isPasswordComplex(s string) bool {
	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
