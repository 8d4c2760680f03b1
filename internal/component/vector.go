package component

import "sort"

// Scalar is the element type of variable storage.
type Scalar interface {
	~float64 | ~complex128
}

// Values stores named, flat variables in insertion order.
//
// Set never fails: values for unknown names or with the wrong size are kept
// and rejected afterwards by the declarations check. This keeps Compute
// bodies free of error plumbing for what are programming mistakes.
type Values[T Scalar] struct {
	names []string
	data  map[string][]T
}

// Vector holds real-valued variables.
type Vector = Values[float64]

// ComplexVector holds complex-valued variables for complex-step evaluation.
type ComplexVector = Values[complex128]

// NewVector creates an empty real vector.
func NewVector() *Vector {
	return &Vector{data: make(map[string][]float64)}
}

// NewComplexVector creates an empty complex vector.
func NewComplexVector() *ComplexVector {
	return &ComplexVector{data: make(map[string][]complex128)}
}

// Add registers name with a copy of vals, replacing any previous value.
func (v *Values[T]) Add(name string, vals []T) {
	if _, ok := v.data[name]; !ok {
		v.names = append(v.names, name)
	}
	v.data[name] = append([]T(nil), vals...)
}

// Set stores vals under name.
func (v *Values[T]) Set(name string, vals ...T) {
	v.Add(name, vals)
}

// Get returns the stored slice for name, or nil. The slice aliases the
// vector's storage.
func (v *Values[T]) Get(name string) []T {
	return v.data[name]
}

// Scalar returns the first element of name, or zero if missing.
func (v *Values[T]) Scalar(name string) T {
	vals := v.data[name]
	if len(vals) == 0 {
		var zero T
		return zero
	}
	return vals[0]
}

// Has reports whether name is stored.
func (v *Values[T]) Has(name string) bool {
	_, ok := v.data[name]
	return ok
}

// Size returns the number of elements stored under name, or -1.
func (v *Values[T]) Size(name string) int {
	vals, ok := v.data[name]
	if !ok {
		return -1
	}
	return len(vals)
}

// Names returns variable names in insertion order.
func (v *Values[T]) Names() []string {
	return append([]string(nil), v.names...)
}

// SortedNames returns variable names in lexical order.
func (v *Values[T]) SortedNames() []string {
	names := v.Names()
	sort.Strings(names)
	return names
}

// Len returns the number of variables.
func (v *Values[T]) Len() int {
	return len(v.names)
}

// Clone returns a deep copy.
func (v *Values[T]) Clone() *Values[T] {
	c := &Values[T]{
		names: append([]string(nil), v.names...),
		data:  make(map[string][]T, len(v.data)),
	}
	for name, vals := range v.data {
		c.data[name] = append([]T(nil), vals...)
	}
	return c
}

// Complexify lifts a real vector to a complex one with zero imaginary parts.
func Complexify(v *Vector) *ComplexVector {
	c := NewComplexVector()
	for _, name := range v.names {
		src := v.data[name]
		vals := make([]complex128, len(src))
		for i, x := range src {
			vals[i] = complex(x, 0)
		}
		c.Add(name, vals)
	}
	return c
}
