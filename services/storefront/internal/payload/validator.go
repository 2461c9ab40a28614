package payload

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationError carries one translated message per offending JSON field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, e.Fields[k])
	}
	return strings.Join(msgs, "; ")
}

// Normalizer is implemented by payloads that clean their input before validation.
type Normalizer interface {
	Normalize()
}

// Validator validates request payloads and translates failures to English.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

func NewValidator() (*Validator, error) {
	locale := en.New()
	uni := ut.New(locale, locale)
	trans, _ := uni.GetTranslator("en")

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	overrides := map[string]string{
		"email":    "Please input a valid email.",
		"required": "{0} is required.",
	}
	for tag, text := range overrides {
		if err := validate.RegisterTranslation(tag, trans, registerText(tag, text), translateField); err != nil {
			return nil, err
		}
	}

	return &Validator{validate: validate, trans: trans}, nil
}

// Validate normalizes s when it implements Normalizer, then returns a
// *ValidationError when s fails its validate tags.
func (v *Validator) Validate(s any) error {
	if n, ok := s.(Normalizer); ok {
		n.Normalize()
	}

	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, ok := fields[fe.Field()]; !ok {
			fields[fe.Field()] = fe.Translate(v.trans)
		}
	}

	return &ValidationError{Fields: fields}
}

func registerText(tag, text string) validator.RegisterTranslationsFunc {
	return func(trans ut.Translator) error {
		return trans.Add(tag, text, true)
	}
}

func translateField(trans ut.Translator, fe validator.FieldError) string {
	msg, err := trans.T(fe.Tag(), fe.Field())
	if err != nil {
		return fe.Error()
	}
	return msg
}
