// Package foam builds and encodes OpenFOAM-style dictionary files.
//
// Dictionaries keep entries in insertion order and numbers are formatted
// with a fixed number of significant digits, so encoding the same tree
// always yields the same bytes.
package foam

import (
	"strconv"
	"strings"
)

// Word is written verbatim, without quotes
type Word string

// Quoted is written inside double quotes
type Quoted string

// Raw is copied to the output without any processing
type Raw string

// Vector is written as "(x y z)"
type Vector [3]float64

// Dimensions is a dimension set in [kg m s K mol A cd] order
type Dimensions [7]int

// Common dimension sets
var (
	Dimless          = Dimensions{0, 0, 0, 0, 0, 0, 0}
	DimVelocity      = Dimensions{0, 1, -1, 0, 0, 0, 0}
	DimAcceleration  = Dimensions{0, 1, -2, 0, 0, 0, 0}
	DimKinematicP    = Dimensions{0, 2, -2, 0, 0, 0, 0}
	DimPressure      = Dimensions{1, -1, -2, 0, 0, 0, 0}
	DimKinViscosity  = Dimensions{0, 2, -1, 0, 0, 0, 0}
	DimDynViscosity  = Dimensions{1, -1, -1, 0, 0, 0, 0}
	DimDensity       = Dimensions{1, -3, 0, 0, 0, 0, 0}
	DimTemperature   = Dimensions{0, 0, 0, 1, 0, 0, 0}
	DimTurbEnergy    = Dimensions{0, 2, -2, 0, 0, 0, 0}
	DimDissipation   = Dimensions{0, 2, -3, 0, 0, 0, 0}
	DimFrequency     = Dimensions{0, 0, -1, 0, 0, 0, 0}
	DimMolarMass     = Dimensions{1, 0, 0, 0, -1, 0, 0}
	DimSpecificHeat  = Dimensions{0, 2, -2, -1, 0, 0, 0}
	DimLength        = Dimensions{0, 1, 0, 0, 0, 0, 0}
)

// Dimensioned is a scalar with explicit units, "[dims] value"
type Dimensioned struct {
	Dims  Dimensions
	Value float64
}

// Uniform is a uniform field value, "uniform v"
type Uniform struct {
	Value interface{}
}

// List is a parenthesised list of values
type List []interface{}

// Keyed is a named sub-dictionary inside a list, as in a boundary list
type Keyed struct {
	Key  string
	Dict *Dict
}

type entry struct {
	key   string
	value interface{}
}

// Dict is an ordered dictionary
type Dict struct {
	entries []entry
}

// NewDict creates an empty dictionary
func NewDict() *Dict {
	return &Dict{}
}

// Set appends or replaces an entry. Replacing keeps the original position.
func (d *Dict) Set(key string, value interface{}) *Dict {
	for i := range d.entries {
		if d.entries[i].key == key {
			d.entries[i].value = value
			return d
		}
	}
	d.entries = append(d.entries, entry{key: key, value: value})
	return d
}

// Sub returns the sub-dictionary under key, creating it if needed
func (d *Dict) Sub(key string) *Dict {
	if v, ok := d.Get(key); ok {
		if sub, ok := v.(*Dict); ok {
			return sub
		}
	}
	sub := NewDict()
	d.Set(key, sub)
	return sub
}

// Get returns the value stored under key
func (d *Dict) Get(key string) (interface{}, bool) {
	for _, e := range d.entries {
		if e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// Keys returns the entry keys in insertion order
func (d *Dict) Keys() []string {
	keys := make([]string, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.key
	}
	return keys
}

// Len returns the number of entries
func (d *Dict) Len() int {
	return len(d.entries)
}

// FormatScalar renders a number the way every dictionary file does
func FormatScalar(v float64) string {
	if v == 0 {
		// folds -0
		return "0"
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func formatVector(v Vector) string {
	return "(" + FormatScalar(v[0]) + " " + FormatScalar(v[1]) + " " + FormatScalar(v[2]) + ")"
}

func formatDimensions(d Dimensions) string {
	parts := make([]string, len(d))
	for i, n := range d {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
