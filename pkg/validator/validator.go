// Package validator wraps go-playground/validator with English and German
// messages and the handbook-specific rules.
package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/de"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// Supported message languages.
const (
	LangEN = "en"
	LangDE = "de"
)

// TagNamespace validates namespace and study program identifiers.
const TagNamespace = "namespace"

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// German has no bundled translation set; only the tags the API uses are
// registered.
var germanMessages = map[string]string{
	"required":   "{0} ist ein Pflichtfeld",
	"min":        "{0} muss mindestens {1} sein",
	"max":        "{0} darf höchstens {1} sein",
	"gte":        "{0} muss größer oder gleich {1} sein",
	"lte":        "{0} muss kleiner oder gleich {1} sein",
	"oneof":      "{0} muss einer der folgenden Werte sein: {1}",
	TagNamespace: "{0} darf nur Buchstaben, Ziffern, '_' und '-' enthalten",
}

var namespaceMessageEN = "{0} may only contain letters, digits, '_' and '-'"

// Validator validates structs and renders failures per language. Field
// names in messages are the json names.
type Validator struct {
	validate *validator.Validate
	trans    map[string]ut.Translator
}

// New returns a Validator reading rules from tagName ("validate" when empty).
func New(tagName string) *Validator {
	validate := validator.New()
	if tagName != "" {
		validate.SetTagName(tagName)
	}
	validate.RegisterTagNameFunc(jsonName)
	_ = validate.RegisterValidation(TagNamespace, func(fl validator.FieldLevel) bool {
		return namespacePattern.MatchString(fl.Field().String())
	})

	uni := ut.New(en.New(), en.New(), de.New())
	enTrans, _ := uni.GetTranslator(LangEN)
	deTrans, _ := uni.GetTranslator(LangDE)

	_ = entranslations.RegisterDefaultTranslations(validate, enTrans)
	addMessages(validate, enTrans, map[string]string{TagNamespace: namespaceMessageEN})
	addMessages(validate, deTrans, germanMessages)

	return &Validator{
		validate: validate,
		trans:    map[string]ut.Translator{LangEN: enTrans, LangDE: deTrans},
	}
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}

func addMessages(validate *validator.Validate, trans ut.Translator, messages map[string]string) {
	for tag, message := range messages {
		_ = validate.RegisterTranslation(tag, trans,
			func(t ut.Translator) error { return t.Add(tag, message, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				msg, err := t.T(fe.Tag(), fe.Field(), fe.Param())
				if err != nil {
					return fe.Error()
				}
				return msg
			},
		)
	}
}

// Struct validates s.
func (v *Validator) Struct(s any) error {
	return v.validate.Struct(s)
}

// Var validates a single value against tag.
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// Translate renders err, as returned by Struct or by gin binding, in lang.
// Region subtags are ignored and unknown languages fall back to English.
// Errors that are not validation failures become a single "body" entry.
func (v *Validator) Translate(err error, lang string) *ValidationErrors {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationErrors{Errors: []FieldError{{Field: "body", Tag: "decode", Message: err.Error()}}}
	}

	trans := v.translator(lang)
	out := &ValidationErrors{Errors: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Errors = append(out.Errors, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fe.Value(),
			Param:   fe.Param(),
			Message: fe.Translate(trans),
		})
	}
	return out
}

func (v *Validator) translator(lang string) ut.Translator {
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	base, _, _ = strings.Cut(base, "_")
	if t, ok := v.trans[base]; ok {
		return t
	}
	return v.trans[LangEN]
}
