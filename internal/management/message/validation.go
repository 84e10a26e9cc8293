package message

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is returned when an envelope fails validation.
var ErrInvalid = errors.New("message: invalid")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("method", func(fl validator.FieldLevel) bool {
		return Method(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks that a request is addressed and routed: scope, device,
// application name and version, a known method and both type discriminators.
func Validate(r *Request) error {
	if r == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalid)
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
