package analysis

import (
	"errors"
	"fmt"
	"reflect"
)

// ExtensionPointName identifies an extension point.
type ExtensionPointName string

const (
	TreeChangePreprocessorEP ExtensionPointName = "tree-change-preprocessor"
	JvmElementProviderEP     ExtensionPointName = "jvm-element-provider"
	ElementFinderEP          ExtensionPointName = "element-finder"
)

var (
	ErrUndeclaredExtensionPoint = errors.New("extension point is not declared")
	ErrExtensionPointDeclared   = errors.New("extension point already declared")
	ErrExtensionType            = errors.New("extension does not match extension point type")
)

// TreeChangePreprocessor is notified before the engine processes a change
// to the file at path.
type TreeChangePreprocessor interface {
	TreeChanging(path string)
}

// JvmElementProvider contributes classes that do not come from the classpath.
type JvmElementProvider interface {
	ClassesByName(shortName string) []*ClassInfo
}

type extensionPoint struct {
	name       ExtensionPointName
	iface      reflect.Type
	extensions []any
}

// DeclareExtensionPoint declares name as accepting extensions of type T.
// Extensions can only be installed into declared points.
func DeclareExtensionPoint[T any](env *ProjectEnvironment, name ExtensionPointName) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.disposed {
		return ErrDisposed
	}
	if _, ok := env.points[name]; ok {
		return fmt.Errorf("%w: %s", ErrExtensionPointDeclared, name)
	}
	env.points[name] = &extensionPoint{name: name, iface: reflect.TypeFor[T]()}
	return nil
}

// InstallExtension appends ext to the declared extension point name.
func InstallExtension[T any](env *ProjectEnvironment, name ExtensionPointName, ext T) error {
	env.mu.Lock()
	defer env.mu.Unlock()
	if env.disposed {
		return ErrDisposed
	}
	ep, ok := env.points[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredExtensionPoint, name)
	}
	if reflect.TypeFor[T]() != ep.iface {
		return fmt.Errorf("%w: %s wants %s", ErrExtensionType, name, ep.iface)
	}
	ep.extensions = append(ep.extensions, ext)
	return nil
}

// Extensions returns the extensions installed into name, in install order.
func Extensions[T any](env *ProjectEnvironment, name ExtensionPointName) []T {
	env.mu.RLock()
	defer env.mu.RUnlock()
	ep, ok := env.points[name]
	if !ok {
		return nil
	}
	out := make([]T, 0, len(ep.extensions))
	for _, ext := range ep.extensions {
		if v, ok := ext.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// HasExtensionPoint reports whether name has been declared.
func (e *ProjectEnvironment) HasExtensionPoint(name ExtensionPointName) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.points[name]
	return ok
}
