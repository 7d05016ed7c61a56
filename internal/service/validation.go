package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/luciOnel/PCSHOP/internal/apperror"
)

// MinPasswordLength is the shortest password Register accepts, in characters.
const MinPasswordLength = 6

// mailboxPattern accepts local@domain.tld with no whitespace and exactly one @.
var mailboxPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Every email is normalized before it is compared, stored or audited.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// tagPriority orders violations so the earliest rule in the register/login
// checklist wins when several fields fail at once.
var tagPriority = map[string]int{
	"required": 0,
	"mailbox":  1,
	"password": 2,
}

// newValidator builds the validator used by AuthService. Field names in
// violations come from the json tags, matching what clients send.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// RegisterValidation only fails on an empty tag or nil func.
	_ = v.RegisterValidation("mailbox", func(fl validator.FieldLevel) bool {
		return mailboxPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(fl.Field().String()) >= MinPasswordLength
	})

	return v
}

// toAppError converts the highest-priority validation failure into the
// matching apperror kind.
func toAppError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.InvalidInput("", "request is invalid")
	}

	first := verrs[0]
	for _, fe := range verrs[1:] {
		if tagPriority[fe.Tag()] < tagPriority[first.Tag()] {
			first = fe
		}
	}

	field := first.Field()
	switch first.Tag() {
	case "required":
		return apperror.InvalidInput(field, field+" is required")
	case "mailbox":
		return apperror.InvalidInput(field, "email address is not valid")
	case "password":
		return apperror.WeakCredential(field, fmt.Sprintf("password must be at least %d characters long", MinPasswordLength))
	default:
		return apperror.InvalidInput(field, field+" is invalid")
	}
}
