package core

import (
	"reflect"

	"github.com/encodeous/ospf6rde/state"
)

func Get[T state.RdeModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}
