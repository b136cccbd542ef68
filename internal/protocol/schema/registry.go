package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/cdrbridge/internal/protocol/cdr"
)

var (
	ErrSchemaExists  = errors.New("schema: already registered")
	ErrSchemaNil     = errors.New("schema: nil schema")
	ErrInvalidName   = errors.New("schema: invalid type name")
	ErrServiceExists = errors.New("schema: service already registered")
)

// Registry indexes schemas and service descriptors by type name.
type Registry struct {
	mu       sync.RWMutex
	schemas  map[string]*cdr.Schema
	services map[string]Service
}

func NewRegistry() *Registry {
	return &Registry{
		schemas:  make(map[string]*cdr.Schema),
		services: make(map[string]Service),
	}
}

// Register adds s under its type name.
func (r *Registry) Register(s *cdr.Schema) error {
	if s == nil {
		return ErrSchemaNil
	}
	if !isValidTypeName(s.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.Name]; ok {
		return fmt.Errorf("%w: %s", ErrSchemaExists, s.Name)
	}
	r.schemas[s.Name] = s
	return nil
}

// RegisterService adds svc and both of its schemas. Schemas already
// present under the same name must be the same definition.
func (r *Registry) RegisterService(svc Service) error {
	if svc.Request == nil || svc.Response == nil {
		return ErrSchemaNil
	}
	if !isValidTypeName(svc.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, svc.Name)
	}
	parts := []*cdr.Schema{svc.Request, svc.Response}
	for _, s := range parts {
		if !isValidTypeName(s.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidName, s.Name)
		}
	}
	if svc.Request != svc.Response && svc.Request.Name == svc.Response.Name {
		return fmt.Errorf("%w: %s", ErrSchemaExists, svc.Request.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[svc.Name]; ok {
		return fmt.Errorf("%w: %s", ErrServiceExists, svc.Name)
	}
	for _, s := range parts {
		if existing, ok := r.schemas[s.Name]; ok && existing != s {
			return fmt.Errorf("%w: %s", ErrSchemaExists, s.Name)
		}
	}
	for _, s := range parts {
		r.schemas[s.Name] = s
	}
	r.services[svc.Name] = svc
	return nil
}

// Resolve returns the schema registered under name.
func (r *Registry) Resolve(name string) (*cdr.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// ResolveService returns the service registered under name.
func (r *Registry) ResolveService(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Names returns registered schema names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceNames returns registered service names in sorted order.
func (r *Registry) ServiceNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry holding every built-in type.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		for _, s := range []*cdr.Schema{Vector3Schema, TwistSchema, StringSchema} {
			if err := r.Register(s); err != nil {
				panic(err)
			}
		}
		if err := r.RegisterService(AddTwoInts); err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// isValidTypeName accepts package/kind/Name style identifiers.
func isValidTypeName(name string) bool {
	if name == "" || strings.TrimSpace(name) != name {
		return false
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '_':
			default:
				return false
			}
		}
	}
	return true
}
