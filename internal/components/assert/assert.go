package assert

import (
	"fmt"
	"reflect"
)

// NotNil panics if value is nil, including typed nils stored in an interface.
func NotNil(value any, name ...string) {
	if value == nil || isNilPointer(value) {
		panic(fmt.Sprintf("expected value to be not nil %v", name))
	}
}

func isNilPointer(value any) bool {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func NotEmptyStr(str string, name ...string) {
	if str == "" {
		panic(fmt.Sprintf("expected string to be non-empty %v", name))
	}
}
