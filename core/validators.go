package core

import (
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/shopspring/decimal"
)

var (
	// custom validation tags & texts
	academicYearTag   = "academic_year"
	academicYearText  = "{0} must be an academic year like 2024-2025"
	academicYearRegex = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

	centsTag  = "cents"
	centsText = "{0} must have at most 2 decimal places"

	rolesTag  = "roles"
	rolesText = "invalid roles"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// amounts are validated as numbers (gt=0, gte=0, lte=100...)
	validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	// register custom validators
	_ = validate.RegisterValidation(academicYearTag, academicYearValidation)
	RegisterCustomTranslation(validate, translator, academicYearTag, academicYearText)

	_ = validate.RegisterValidation(centsTag, centsValidation)
	RegisterCustomTranslation(validate, translator, centsTag, centsText)

	_ = validate.RegisterValidation(rolesTag, rolesValidation)
	RegisterCustomTranslation(validate, translator, rolesTag, rolesText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// Custom Global Validators

// academicYearValidation accepts "YYYY-YYYY" where the second year follows the first.
func academicYearValidation(fl validator.FieldLevel) bool {
	return IsAcademicYear(fl.Field().String())
}

func IsAcademicYear(s string) bool {
	m := academicYearRegex.FindStringSubmatch(s)
	if m == nil {
		return false
	}
	start, _ := strconv.Atoi(m[1])
	end, _ := strconv.Atoi(m[2])
	return end == start+1
}

// centsValidation accepts amounts a NUMERIC(_, 2) column stores as is.
func centsValidation(fl validator.FieldLevel) bool {
	cents := fl.Field().Float() * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// rolesValidation checks that provided roles are all known.
func rolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	for _, role := range roles {
		known := false
		for _, r := range AllRoles {
			if r == role {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}
