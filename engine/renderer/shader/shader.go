package shader

import "fmt"

// shader is the implementation of the Shader interface.
type shader struct {
	key           string
	source        string
	entryPoint    string
	workGroupSize [3]uint32
	bindings      []Binding
	declarations  []Annotation
}

// Shader is a pre-processed WGSL compute kernel with the metadata a backend needs to build a
// pipeline for it and dispatch it.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used in labels and logs.
	Key() string

	// Source retrieves the processed WGSL source.
	Source() string

	// EntryPoint retrieves the name of the @compute function.
	EntryPoint() string

	// WorkgroupSize retrieves the @workgroup_size of the entry point.
	//
	// Returns:
	//   - [3]uint32: the workgroup dimensions, unspecified dimensions are 1
	WorkgroupSize() [3]uint32

	// Bindings retrieves every resource declaration, sorted by group and binding.
	Bindings() []Binding

	// Binding retrieves the declaration at group and binding.
	//
	// Parameters:
	//   - group: the @group index
	//   - binding: the @binding index
	//
	// Returns:
	//   - Binding: the declaration
	//   - bool: false if nothing is declared there
	Binding(group, binding int) (Binding, bool)

	// Declarations retrieves the group annotations the pre-processor expanded.
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewComputeShader pre-processes source and parses the result.
//
// Parameters:
//   - key: the shader's unique key
//   - source: the raw WGSL source, may contain @oxy: annotations
//   - pp: the pre-processor, nil to use source as is
//
// Returns:
//   - Shader: the parsed shader
//   - error: a pre-processing failure, or a source without a @compute entry point
func NewComputeShader(key, source string, pp PreProcessor) (Shader, error) {
	s := &shader{key: key, source: source}
	if pp != nil {
		processed, err := pp.Process(source)
		if err != nil {
			return nil, fmt.Errorf("shader %q: %w", key, err)
		}
		s.source = processed
		s.declarations = append([]Annotation(nil), pp.Declarations()...)
	}

	s.entryPoint = parseEntryPoint(s.source)
	if s.entryPoint == "" {
		return nil, fmt.Errorf("shader %q: no @compute entry point", key)
	}
	s.workGroupSize = parseWorkgroupSize(s.source)
	s.bindings = parseBindings(s.source)
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Bindings() []Binding {
	return s.bindings
}

func (s *shader) Binding(group, binding int) (Binding, bool) {
	for _, b := range s.bindings {
		if b.Group == group && b.Binding == binding {
			return b, true
		}
	}
	return Binding{}, false
}

func (s *shader) Declarations() []Annotation {
	return s.declarations
}
