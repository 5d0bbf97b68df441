package utils

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()

	// Custom validations
	v.RegisterValidation("thumbnail_size", validateThumbnailSize)

	return &Validator{
		validate: v,
	}
}

func (v *Validator) Struct(s interface{}) error {
	return v.validate.Struct(s)
}

// FailedFields returns the struct field names that failed validation
// together with the tag that rejected them.
func FailedFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

// Desteklenen boyutları kontrol et
func validateThumbnailSize(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "original", "thumbnail":
		return true
	}
	return false
}
