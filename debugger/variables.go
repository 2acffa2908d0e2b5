package debugger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	e "github.com/fansqz/node-debugger/error"
	"github.com/fansqz/node-debugger/protocol"
	"github.com/fansqz/node-debugger/utils"
	"github.com/google/go-dap"
)

// chunkSize is the largest number of concrete children returned in one
// expansion; bigger indexed collections are folded into range placeholders.
const chunkSize = 100

// GetScopes lists the scopes of one stack frame, outermost last.
func (d *NodeDebugger) GetScopes(ctx context.Context, frameId int) ([]dap.Scope, error) {
	if !d.status.Is(utils.Stopped) {
		return nil, e.ErrProgramIsRunningOptionFail
	}
	frame, ok := d.frameByID(frameId)
	if !ok {
		return nil, fmt.Errorf("unknown frame %d", frameId)
	}

	scopeRefs := frame.Scopes
	if len(scopeRefs) == 0 {
		response, err := d.client.Command(ctx, "scopes", &protocol.ScopesArgs{FrameNumber: frameId})
		if err != nil {
			return nil, err
		}
		if !response.Success {
			return nil, fmt.Errorf("scopes failed: %s", response.Message)
		}
		d.handles.Put(response.Refs)
		body := protocol.ScopesResponseBody{}
		if err := response.BodyAs(&body); err != nil {
			return nil, err
		}
		for _, scope := range body.Scopes {
			scopeRefs = append(scopeRefs, protocol.V8ScopeRef{Index: scope.Index, Type: scope.Type})
		}
	}

	scopes := make([]dap.Scope, 0, len(scopeRefs))
	for _, scope := range scopeRefs {
		thisRef := 0
		if scope.Type == protocol.ScopeTypeLocal {
			thisRef = frame.Receiver.Ref
		}
		reference, err := d.refUtil.CreateVariableReference(NewScopeExpander(frameId, scope.Index, scope.Type, thisRef))
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, dap.Scope{
			Name:               scopeName(scope.Type),
			VariablesReference: reference,
			Expensive:          scope.Type == protocol.ScopeTypeGlobal,
		})
	}
	return scopes, nil
}

func scopeName(scopeType int) string {
	switch scopeType {
	case protocol.ScopeTypeGlobal:
		return "Global"
	case protocol.ScopeTypeLocal:
		return "Local"
	case protocol.ScopeTypeWith:
		return "With"
	case protocol.ScopeTypeClosure:
		return "Closure"
	case protocol.ScopeTypeCatch:
		return "Catch"
	case protocol.ScopeTypeBlock:
		return "Block"
	case protocol.ScopeTypeScript:
		return "Script"
	default:
		return "Scope"
	}
}

// GetVariables 查看引用的值
// filter/start/count follow DAP variables request semantics: filter selects
// indexed or named children, start/count page through the indexed ones.
func (d *NodeDebugger) GetVariables(ctx context.Context, reference int, filter string, start, count int) ([]dap.Variable, error) {
	if !d.status.Is(utils.Stopped) {
		return nil, e.ErrProgramIsRunningOptionFail
	}
	exp, err := d.refUtil.ParseVariableReference(reference)
	if err != nil {
		return nil, err
	}
	switch exp.Kind {
	case ScopeExpander:
		return d.expandScope(ctx, exp)
	case ObjectExpander:
		object, err := d.handles.Lookup(ctx, exp.Handle)
		if err != nil {
			return nil, err
		}
		named, indexed := partitionProperties(object.Properties)
		return d.buildChildren(ctx, exp.Handle, named, indexed, filter, start, count)
	case RangeExpander:
		return d.expandRange(ctx, exp)
	default:
		return nil, e.ErrReferenceNotFound
	}
}

func (d *NodeDebugger) expandScope(ctx context.Context, exp *Expander) ([]dap.Variable, error) {
	response, err := d.client.Command(ctx, "scope", &protocol.ScopeArgs{
		Number:      exp.ScopeIndex,
		FrameNumber: exp.FrameIndex,
	})
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, fmt.Errorf("scope failed: %s", response.Message)
	}
	d.handles.Put(response.Refs)
	body := protocol.ScopeResponseBody{}
	if err := response.BodyAs(&body); err != nil {
		return nil, err
	}

	properties := body.Object.Properties
	ownerHandle := body.Object.Handle
	if len(properties) == 0 && ownerHandle > 0 {
		object, err := d.handles.Lookup(ctx, ownerHandle)
		if err != nil {
			return nil, err
		}
		properties = object.Properties
	}

	named, indexed := partitionProperties(properties)
	variables, err := d.buildChildren(ctx, ownerHandle, named, indexed, "", 0, 0)
	if err != nil {
		return nil, err
	}

	// local scope surfaces the receiver as a synthetic entry
	if exp.ScopeType == protocol.ScopeTypeLocal && exp.ThisRef > 0 {
		receiver, err := d.handles.Lookup(ctx, exp.ThisRef)
		if err == nil && receiver != nil && receiver.Type != protocol.V8TypeUndefined {
			thisVar, err := d.variableFromObject(ctx, "this", receiver)
			if err == nil {
				variables = append([]dap.Variable{thisVar}, variables...)
			}
		}
	}
	return variables, nil
}

func (d *NodeDebugger) expandRange(ctx context.Context, exp *Expander) ([]dap.Variable, error) {
	object, err := d.handles.Lookup(ctx, exp.Handle)
	if err != nil {
		return nil, err
	}
	_, indexed := partitionProperties(object.Properties)

	span := exp.End - exp.Start + 1
	if span > chunkSize {
		return d.rangePlaceholders(exp.Handle, exp.Start, exp.End)
	}

	window := make([]indexedProperty, 0, span)
	for _, ip := range indexed {
		if ip.index >= exp.Start && ip.index <= exp.End {
			window = append(window, ip)
		}
	}
	return d.resolveChildren(ctx, nil, window)
}

// buildChildren assembles the child list for one expansion. Indexed children
// beyond chunkSize collapse into range placeholders so huge arrays never
// serialize in full.
func (d *NodeDebugger) buildChildren(ctx context.Context, ownerHandle int, named []protocol.V8Property, indexed []indexedProperty, filter string, start, count int) ([]dap.Variable, error) {
	switch filter {
	case "named":
		return d.resolveChildren(ctx, named, nil)
	case "indexed":
		end := len(indexed)
		if start > end {
			start = end
		}
		if count > 0 && start+count < end {
			end = start + count
		}
		return d.resolveChildren(ctx, nil, indexed[start:end])
	}

	if len(indexed) > chunkSize {
		variables, err := d.resolveChildren(ctx, named, nil)
		if err != nil {
			return nil, err
		}
		// placeholders re-expand through the owning object handle
		placeholders, err := d.rangePlaceholders(ownerHandle, 0, indexed[len(indexed)-1].index)
		if err != nil {
			return nil, err
		}
		return append(variables, placeholders...), nil
	}
	return d.resolveChildren(ctx, named, indexed)
}

// rangePlaceholders folds [start, end] into at most chunkSize buckets. The
// bucket width grows by powers of chunkSize until the bucket count fits, so
// a million-element array expands as 100 buckets of 10000.
func (d *NodeDebugger) rangePlaceholders(handle, start, end int) ([]dap.Variable, error) {
	bucket := chunkSize
	for (end-start+1)/bucket > chunkSize {
		bucket *= chunkSize
	}
	variables := make([]dap.Variable, 0, (end-start)/bucket+1)
	for lo := start; lo <= end; lo += bucket {
		hi := lo + bucket - 1
		if hi > end {
			hi = end
		}
		reference, err := d.refUtil.CreateVariableReference(NewRangeExpander(handle, lo, hi))
		if err != nil {
			return nil, err
		}
		variables = append(variables, dap.Variable{
			Name:               fmt.Sprintf("[%d..%d]", lo, hi),
			Value:              "",
			VariablesReference: reference,
		})
	}
	return variables, nil
}

// resolveChildren fetches every child mirror in one batched lookup and
// renders the variables. Named children keep mirror order, indexed children
// are numerically sorted.
func (d *NodeDebugger) resolveChildren(ctx context.Context, named []protocol.V8Property, indexed []indexedProperty) ([]dap.Variable, error) {
	handles := make([]int, 0, len(named)+len(indexed))
	for _, property := range named {
		handles = append(handles, property.Ref)
	}
	for _, ip := range indexed {
		handles = append(handles, ip.property.Ref)
	}
	if err := d.handles.Resolve(ctx, handles); err != nil {
		return nil, err
	}

	variables := make([]dap.Variable, 0, len(named)+len(indexed))
	for _, property := range named {
		object, _ := d.handles.Get(property.Ref)
		variable, err := d.variableFromObject(ctx, property.NameString(), object)
		if err != nil {
			return nil, err
		}
		variables = append(variables, variable)
	}
	for _, ip := range indexed {
		object, _ := d.handles.Get(ip.property.Ref)
		variable, err := d.variableFromObject(ctx, strconv.Itoa(ip.index), object)
		if err != nil {
			return nil, err
		}
		variables = append(variables, variable)
	}
	return variables, nil
}

// variableFromObject renders one mirror as a DAP variable, minting a child
// reference when it is expandable.
func (d *NodeDebugger) variableFromObject(ctx context.Context, name string, object *protocol.V8Object) (dap.Variable, error) {
	if object == nil {
		return dap.Variable{Name: name, Value: "<unknown>"}, nil
	}
	variable := dap.Variable{
		Name:  name,
		Value: formatValue(object),
		Type:  variableType(object),
	}
	if isExpandable(object) {
		reference, err := d.refUtil.CreateVariableReference(NewObjectExpander(object.Handle))
		if err != nil {
			return variable, err
		}
		variable.VariablesReference = reference
		named, indexed := partitionProperties(object.Properties)
		if len(indexed) > 0 {
			variable.IndexedVariables = len(indexed)
			variable.NamedVariables = len(named)
		}
	}
	return variable, nil
}

func isExpandable(object *protocol.V8Object) bool {
	switch object.Type {
	case protocol.V8TypeObject, protocol.V8TypeFunction:
		return object.Handle > 0
	}
	return false
}

func variableType(object *protocol.V8Object) string {
	if object.Type == protocol.V8TypeObject && object.ClassName != "" {
		return object.ClassName
	}
	return object.Type
}

// indexedProperty pairs a property with its numeric name.
type indexedProperty struct {
	index    int
	property protocol.V8Property
}

// partitionProperties splits object properties into named and numerically
// indexed ones; indexed come back sorted by index.
func partitionProperties(properties []protocol.V8Property) ([]protocol.V8Property, []indexedProperty) {
	var named []protocol.V8Property
	var indexed []indexedProperty
	for _, property := range properties {
		name := property.NameString()
		if index, err := strconv.Atoi(name); err == nil && index >= 0 {
			indexed = append(indexed, indexedProperty{index: index, property: property})
			continue
		}
		named = append(named, property)
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].index < indexed[j].index })
	return named, indexed
}

// formatValue renders a mirror into the display string.
func formatValue(object *protocol.V8Object) string {
	switch object.Type {
	case protocol.V8TypeUndefined:
		return "undefined"
	case protocol.V8TypeNull:
		return "null"
	case protocol.V8TypeBoolean:
		return strings.ToLower(scalarText(object))
	case protocol.V8TypeNumber:
		return scalarText(object)
	case protocol.V8TypeString:
		return strconv.Quote(scalarText(object))
	case protocol.V8TypeFunction:
		name := object.Name
		if name == "" {
			name = object.InferredName
		}
		return "function " + name + "() { ... }"
	case protocol.V8TypeError:
		return object.Text
	case protocol.V8TypeObject:
		_, indexed := partitionProperties(object.Properties)
		if len(indexed) > 0 || object.ClassName == "Array" {
			return fmt.Sprintf("%s[%d]", className(object), len(indexed))
		}
		return className(object)
	default:
		return scalarText(object)
	}
}

func className(object *protocol.V8Object) string {
	if object.ClassName != "" {
		return object.ClassName
	}
	return "Object"
}

// scalarText prefers the mirror text and falls back to the raw value.
func scalarText(object *protocol.V8Object) string {
	if object.Text != "" {
		return object.Text
	}
	if len(object.Value) > 0 {
		var value interface{}
		if err := json.Unmarshal(object.Value, &value); err == nil {
			switch v := value.(type) {
			case string:
				return v
			case float64:
				return strconv.FormatFloat(v, 'f', -1, 64)
			default:
				return fmt.Sprint(v)
			}
		}
		return string(object.Value)
	}
	return ""
}
