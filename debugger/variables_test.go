package debugger

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/fansqz/node-debugger/protocol"
	"github.com/stretchr/testify/assert"
)

func TestPartitionProperties(t *testing.T) {
	named, indexed := partitionProperties([]protocol.V8Property{
		{Name: "length", Ref: 1},
		{Name: float64(2), Ref: 2},
		{Name: "0", Ref: 3},
		{Name: "constructor", Ref: 4},
		{Name: float64(1), Ref: 5},
		{Name: "-1", Ref: 6}, // negative names are not indices
	})

	assert.Len(t, named, 3)
	assert.Equal(t, "length", named[0].NameString())
	assert.Equal(t, "constructor", named[1].NameString())
	assert.Equal(t, "-1", named[2].NameString())

	// indexed come back numerically sorted regardless of arrival order
	assert.Len(t, indexed, 3)
	assert.Equal(t, 0, indexed[0].index)
	assert.Equal(t, 1, indexed[1].index)
	assert.Equal(t, 2, indexed[2].index)
	assert.Equal(t, 3, indexed[0].property.Ref)
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		name   string
		object protocol.V8Object
		want   string
	}{
		{"undefined", protocol.V8Object{Type: "undefined"}, "undefined"},
		{"null", protocol.V8Object{Type: "null"}, "null"},
		{"boolean lowercased", protocol.V8Object{Type: "boolean", Text: "True"}, "true"},
		{"number text", protocol.V8Object{Type: "number", Text: "3.14"}, "3.14"},
		{"number from raw value", protocol.V8Object{Type: "number", Value: json.RawMessage("42")}, "42"},
		{"string quoted", protocol.V8Object{Type: "string", Text: "a\"b\nc"}, `"a\"b\nc"`},
		{"named function", protocol.V8Object{Type: "function", Name: "main"}, "function main() { ... }"},
		{"inferred function name", protocol.V8Object{Type: "function", InferredName: "cb"}, "function cb() { ... }"},
		{"error text", protocol.V8Object{Type: "error", Text: "Error: boom"}, "Error: boom"},
		{"plain object", protocol.V8Object{Type: "object", ClassName: "Point"}, "Point"},
		{"bare object", protocol.V8Object{Type: "object"}, "Object"},
		{
			"array with elements",
			protocol.V8Object{
				Type:      "object",
				ClassName: "Array",
				Properties: []protocol.V8Property{
					{Name: float64(0), Ref: 1},
					{Name: float64(1), Ref: 2},
					{Name: "length", Ref: 3},
				},
			},
			"Array[2]",
		},
		{"empty array", protocol.V8Object{Type: "object", ClassName: "Array"}, "Array[0]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, formatValue(&c.object))
		})
	}
}

func TestVariableTypeUsesClassName(t *testing.T) {
	assert.Equal(t, "number", variableType(&protocol.V8Object{Type: "number"}))
	assert.Equal(t, "Buffer", variableType(&protocol.V8Object{Type: "object", ClassName: "Buffer"}))
	assert.Equal(t, "object", variableType(&protocol.V8Object{Type: "object"}))
}

func TestIsExpandable(t *testing.T) {
	assert.True(t, isExpandable(&protocol.V8Object{Type: "object", Handle: 4}))
	assert.True(t, isExpandable(&protocol.V8Object{Type: "function", Handle: 4}))
	assert.False(t, isExpandable(&protocol.V8Object{Type: "string", Handle: 4}))
	assert.False(t, isExpandable(&protocol.V8Object{Type: "object"}))
}

func TestRangePlaceholderBuckets(t *testing.T) {
	debug := NewNodeDebugger()

	// 10000 elements fit in exactly chunkSize buckets of chunkSize
	variables, err := debug.rangePlaceholders(1, 0, 9999)
	assert.Nil(t, err)
	assert.Len(t, variables, 100)
	assert.Equal(t, "[0..99]", variables[0].Name)
	assert.Equal(t, "[9900..9999]", variables[99].Name)

	// a million elements grow the bucket to chunkSize^2
	variables, err = debug.rangePlaceholders(1, 0, 999999)
	assert.Nil(t, err)
	assert.Len(t, variables, 100)
	assert.Equal(t, "[0..9999]", variables[0].Name)
	assert.Equal(t, "[990000..999999]", variables[99].Name)

	// a short tail keeps its exact bounds
	variables, err = debug.rangePlaceholders(1, 0, 249)
	assert.Nil(t, err)
	assert.Len(t, variables, 3)
	assert.Equal(t, "[200..249]", variables[2].Name)

	// every placeholder re-expands through a live reference
	for i, variable := range variables {
		exp, err := debug.refUtil.ParseVariableReference(variable.VariablesReference)
		assert.Nil(t, err, fmt.Sprintf("placeholder %d", i))
		assert.Equal(t, RangeExpander, exp.Kind)
		assert.Equal(t, 1, exp.Handle)
	}
}
