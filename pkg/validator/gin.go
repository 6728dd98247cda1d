package validator

import (
	"reflect"
	"sync"

	"github.com/gin-gonic/gin/binding"
)

var (
	bindingValidator *Validator
	bindingOnce      sync.Once
)

// Binding returns the validator used for gin request binding.
// It reads the "binding" struct tag, the same tag gin's default validator reads.
func Binding() *Validator {
	bindingOnce.Do(func() {
		bindingValidator = New("binding")
	})
	return bindingValidator
}

// InstallGin replaces gin's default binding validator with Binding().
// Errors returned by ShouldBind* can then be passed to Binding().Translate.
func InstallGin() {
	binding.Validator = &ginValidator{v: Binding()}
}

type ginValidator struct {
	v *Validator
}

var _ binding.StructValidator = (*ginValidator)(nil)

// ValidateStruct validates structs and pointers to structs; other kinds pass.
func (g *ginValidator) ValidateStruct(obj any) error {
	if obj == nil {
		return nil
	}
	value := reflect.ValueOf(obj)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	return g.v.validate.Struct(obj)
}

func (g *ginValidator) Engine() any {
	return g.v.validate
}
