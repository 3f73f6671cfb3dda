package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

const defaultLocale = "en"

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core  *validator.Validate
	uni   *ut.UniversalTranslator
	trans ut.Translator
}

var _ Validator = &PlaygroundV10{}

var translationRegistrars = map[string]func(*validator.Validate, ut.Translator) error{
	"en": en_translations.RegisterDefaultTranslations,
	"zh": zh_translations.RegisterDefaultTranslations,
}

// jsonFieldName report fields by their json name so messages match the payload
func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// NewValidator create a validator replying in english, see WithLocale
func NewValidator() *PlaygroundV10 {
	uni := ut.New(en.New(), en.New(), zh.New())
	core := validator.New()
	core.RegisterTagNameFunc(jsonFieldName)
	for locale, register := range translationRegistrars {
		trans, _ := uni.GetTranslator(locale)
		if err := register(core, trans); err != nil {
			panic(fmt.Errorf("register %s translations: %w", locale, err))
		}
	}
	trans, _ := uni.GetTranslator(defaultLocale)
	return &PlaygroundV10{core: core, uni: uni, trans: trans}
}

func (v *PlaygroundV10) WithLocale(locale string) Validator {
	trans, found := v.uni.GetTranslator(locale)
	if !found {
		return v
	}
	return &PlaygroundV10{core: v.core, uni: v.uni, trans: trans}
}

func (v *PlaygroundV10) Struct(s interface{}) []*FieldError {
	err := v.core.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []*FieldError{NewFieldError("", err.Error())}
	}
	result := make([]*FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		result[i] = NewFieldError(fe.Field(), fe.Translate(v.trans))
	}
	return result
}

func (v *PlaygroundV10) AllEmpty(names []string, fields ...interface{}) *FieldError {
	if len(names) != len(fields) {
		panic(fmt.Errorf("AllEmpty: %d names for %d fields", len(names), len(fields)))
	}
	for _, field := range fields {
		if v.core.Var(field, "required") == nil {
			return nil
		}
	}
	return NewFieldError(strings.Join(names, ","), "One of the fields should not be empty")
}
