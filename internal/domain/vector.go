// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"fmt"
	"math"
)

// VectorSize is the fixed width of a model feature vector.
const VectorSize = 30

// Slot indices for the named vector positions.
const (
	SlotTime   = 0  // scaled seconds-from-reference
	SlotV1     = 1  // V1..V28 occupy slots 1..28
	SlotAmount = 29 // scaled transaction amount
)

// FeatureNames lists the 30 slot names in model input order:
// Time, V1..V28, Amount.
var FeatureNames = buildFeatureNames()

func buildFeatureNames() [VectorSize]string {
	var names [VectorSize]string
	names[SlotTime] = "Time"
	for i := 1; i <= 28; i++ {
		names[i] = fmt.Sprintf("V%d", i)
	}
	names[SlotAmount] = "Amount"
	return names
}

// FeatureVector is the ordered, fixed-width numeric input the model expects.
// A vector is built once per request and never mutated after assembly.
type FeatureVector [VectorSize]float64

// Validate checks that every slot holds a finite number. It returns a
// ValidationError naming every offending slot, not just the first.
func (v *FeatureVector) Validate() error {
	var fields []FieldError
	for i, val := range v {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			fields = append(fields, FieldError{
				Field:  FeatureNames[i],
				Reason: "must be a finite number",
			})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// VectorFromMap assembles a FeatureVector from named slot values, typically a
// decoded pre-processed JSON record. Every one of the 30 named slots must be
// present and finite; the error lists all missing or invalid slots.
func VectorFromMap(values map[string]float64) (*FeatureVector, error) {
	var vec FeatureVector
	var fields []FieldError
	for i, name := range FeatureNames {
		val, ok := values[name]
		if !ok {
			fields = append(fields, FieldError{Field: name, Reason: "missing"})
			continue
		}
		if math.IsNaN(val) || math.IsInf(val, 0) {
			fields = append(fields, FieldError{Field: name, Reason: "must be a finite number"})
			continue
		}
		vec[i] = val
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return &vec, nil
}

// ToMap returns the vector as a name → value map, the wire shape used by the
// remote scoring service.
func (v *FeatureVector) ToMap() map[string]float64 {
	m := make(map[string]float64, VectorSize)
	for i, name := range FeatureNames {
		m[name] = v[i]
	}
	return m
}

// InputKind tags a scoring input as raw or pre-processed.
type InputKind string

const (
	// InputRaw is a human-readable transaction that must go through
	// feature extraction before the model sees it.
	InputRaw InputKind = "raw"

	// InputProcessed is an already-assembled 30-slot vector that passes
	// through validation only.
	InputProcessed InputKind = "processed"
)

// Input is the tagged union of the two scoring input shapes. The tag is
// decided once at deserialization; downstream code switches on Kind only.
type Input struct {
	Kind        InputKind
	Transaction *RawTransaction
	Vector      *FeatureVector
}

// NewRawInput wraps a raw transaction as a scoring input.
func NewRawInput(tx *RawTransaction) Input {
	return Input{Kind: InputRaw, Transaction: tx}
}

// NewProcessedInput wraps a pre-assembled vector as a scoring input.
func NewProcessedInput(vec *FeatureVector) Input {
	return Input{Kind: InputProcessed, Vector: vec}
}
