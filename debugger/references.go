package debugger

import (
	"encoding/json"
	"sync"

	e "github.com/fansqz/node-debugger/error"
)

type ExpanderKind string

const (
	// ObjectExpander expands the properties of a mirrored object.
	ObjectExpander ExpanderKind = "o"
	// ScopeExpander expands one scope of one stack frame.
	ScopeExpander ExpanderKind = "s"
	// RangeExpander expands a slice of a large indexed collection.
	RangeExpander ExpanderKind = "r"
)

// Expander 变量引用对应的展开信息
// A variable reference handed to the client is just an integer; the expander
// records what to do when the client asks for its children.
type Expander struct {
	Kind   ExpanderKind `json:"kind"`
	Handle int          `json:"handle,omitempty"`

	// scope expanders
	FrameIndex int `json:"frameIndex,omitempty"`
	ScopeIndex int `json:"scopeIndex,omitempty"`
	ScopeType  int `json:"scopeType,omitempty"`
	// ThisRef carries the receiver handle so the local scope can surface a
	// synthetic "this" entry.
	ThisRef int `json:"thisRef,omitempty"`

	// range expanders
	Start int `json:"start,omitempty"`
	End   int `json:"end,omitempty"`
}

func NewObjectExpander(handle int) *Expander {
	return &Expander{Kind: ObjectExpander, Handle: handle}
}

func NewScopeExpander(frameIndex, scopeIndex, scopeType, thisRef int) *Expander {
	return &Expander{
		Kind:       ScopeExpander,
		FrameIndex: frameIndex,
		ScopeIndex: scopeIndex,
		ScopeType:  scopeType,
		ThisRef:    thisRef,
	}
}

func NewRangeExpander(handle, start, end int) *Expander {
	return &Expander{Kind: RangeExpander, Handle: handle, Start: start, End: end}
}

// ReferenceUtil 引用工具类
// It maps expanders to the integer references the wire protocol requires,
// deduplicating by the serialized expander so the same value expansion always
// yields the same reference within one stop.
type ReferenceUtil struct {
	mutex         sync.RWMutex
	nextRef       int
	refInt2Struct map[int]string
	refStruct2Int map[string]int
}

func NewReferenceUtil() *ReferenceUtil {
	return &ReferenceUtil{
		nextRef:       1000,
		refInt2Struct: map[int]string{},
		refStruct2Int: map[string]int{},
	}
}

// CreateVariableReference 根据结构体生成引用
func (r *ReferenceUtil) CreateVariableReference(exp *Expander) (int, error) {
	data, err := json.Marshal(exp)
	if err != nil {
		return 0, err
	}
	key := string(data)
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if ref, ok := r.refStruct2Int[key]; ok {
		return ref, nil
	}
	ref := r.nextRef
	r.nextRef++
	r.refInt2Struct[ref] = key
	r.refStruct2Int[key] = ref
	return ref, nil
}

// ParseVariableReference 解析引用
func (r *ReferenceUtil) ParseVariableReference(reference int) (*Expander, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	refStr, ok := r.refInt2Struct[reference]
	if !ok {
		return nil, e.ErrReferenceNotFound
	}
	exp := &Expander{}
	if err := json.Unmarshal([]byte(refStr), exp); err != nil {
		return nil, err
	}
	return exp, nil
}

// Reset invalidates every outstanding reference in one step. nextRef keeps
// increasing so a stale reference from before the reset fails cleanly instead
// of resolving a different value.
func (r *ReferenceUtil) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.refInt2Struct = map[int]string{}
	r.refStruct2Int = map[string]int{}
}
