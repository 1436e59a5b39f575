// Package scene owns the device-side state of everything the application adds to the scene:
// slot pools, the shared geometry cache, the instance and geometry-instance tables, the
// material table and the top-level acceleration structure.
package scene

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/accel"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/geometry"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/node"
	"github.com/Carmen-Shannon/oxy-trace/engine/slot"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("scene")

const (
	DefaultMaxMaterials          = 1024
	DefaultMaxGeometryInstances  = 65536
	DefaultMaxInstances          = 16384
	DefaultInstanceBufferCount   = 2
	DefaultMaterialSlot          = 0
	defaultComputeQueueDepth     = 256
	defaultComputeWorkerIdleTime = time.Second
)

// NodeResources are the device resources claimed for one node.
type NodeResources struct {
	Handle           node.Handle
	InstanceSlot     int
	GeomInstSlot     int
	Hash             geometry.Hash
	TLASIndex        int
	MaterialSlot     int
	Emissive         bool
	PreviousMoveTime time.Time
}

// SlotUsage reports one pool's occupancy.
type SlotUsage struct {
	InUse    int
	Capacity int
}

// Stats is a snapshot of the scene's bookkeeping.
type Stats struct {
	Nodes             int
	HasGeometry       bool
	Handle            backend.Traversable
	TLASState         accel.State
	TLAS              accel.Metrics
	Geometry          geometry.CacheStats
	Instances         SlotUsage
	GeometryInstances SlotUsage
	Materials         SlotUsage
	Retired           int
}

type sceneHandler struct {
	mu *sync.RWMutex
	b  backend.Backend

	maxMaterials         int
	maxGeometryInstances int
	maxInstances         int
	instanceBuffers      int
	defaultMaterialSlot  int
	hashMode             geometry.HashMode
	dedup                bool
	computeWorkers       int

	initialized bool
	hasGeometry bool
	stream      backend.Stream
	ownsStream  bool

	materialSlots slot.Pool
	geomInstSlots slot.Pool
	instanceSlots slot.Pool

	materialTable Table
	geomInstTable Table
	instances     *instanceRing
	materials     map[material.Material]int

	cache   geometry.Cache
	retired []*geometry.Group
	tlas    accel.TLAS
	pool    worker.DynamicWorkerPool

	nodes      map[node.NodeID]*NodeResources
	tlasOwners []node.NodeID
}

// SceneHandler tracks the renderable nodes the application adds and keeps the device-side scene
// in sync: slots, shared geometry, per-instance tables and the top-level structure.
// Public operations never panic; backend panics are recovered and reported as failures.
// Thread-safe for concurrent access.
type SceneHandler interface {
	// Initialize allocates the slot pools, tables, TLAS manager and worker pool, and writes the
	// default material. Calling it again is a no-op.
	//
	// Returns:
	//   - error: a failure wrapping errs.ErrBackendBuild
	Initialize() error

	// Initialized reports whether Initialize succeeded and Finalize has not run.
	Initialized() bool

	// AddRenderableNode claims resources for the node behind h and queues its instance for the next rebuild.
	// Adding a node that is already present succeeds without changes.
	//
	// Parameters:
	//   - h: the node handle
	//
	// Returns:
	//   - bool: true if the node is in the scene afterwards
	AddRenderableNode(h node.Handle) bool

	// RemoveRenderableNode releases the resources of the node behind h, even if the node itself has expired.
	//
	// Parameters:
	//   - h: the node handle
	//
	// Returns:
	//   - bool: false if the node was not in the scene
	RemoveRenderableNode(h node.Handle) bool

	// RemoveRenderableNodeByID releases the resources of the node with the given ID.
	//
	// Parameters:
	//   - id: the node ID
	//
	// Returns:
	//   - bool: false if the node was not in the scene
	RemoveRenderableNodeByID(id node.NodeID) bool

	// UpdateNodeTransform copies the node's current world transform into its instance record and
	// TLAS instance, keeping the old transform as the previous one.
	//
	// Parameters:
	//   - h: the node handle
	//
	// Returns:
	//   - bool: false if the node is expired or not in the scene
	UpdateNodeTransform(h node.Handle) bool

	// BuildAccelerationStructures rebuilds the TLAS on the current stream. With no nodes the handle becomes 0.
	// On failure the previous handle stays valid.
	//
	// Returns:
	//   - bool: true on success
	BuildAccelerationStructures() bool

	// NodeCount returns the number of nodes in the scene.
	NodeCount() int

	// HasGeometry reports whether any node is in the scene.
	HasGeometry() bool

	// TraversableHandle returns the TLAS handle, or 0 when the scene is empty.
	TraversableHandle() backend.Traversable

	// Resources returns a copy of the resources claimed for a node.
	Resources(id node.NodeID) (NodeResources, bool)

	// AddMaterial writes a material into the material table, reusing its slot if already present.
	//
	// Parameters:
	//   - m: the material
	//
	// Returns:
	//   - int: the material slot
	//   - error: slot.ErrExhausted or errs.ErrNotInitialized
	AddMaterial(m material.Material) (int, error)

	// RemoveMaterial frees a material slot. The default material slot cannot be removed.
	RemoveMaterial(slot int) error

	// SetStream selects the stream future builds are submitted on.
	SetStream(s backend.Stream)

	// SetActiveBuffer brings instance table copy index up to date for the next frame. Instance
	// changes reach a copy only here, so call it once no in-flight frame reads that copy.
	//
	// Parameters:
	//   - index: the copy index, taken modulo the ring size
	SetActiveBuffer(index int) error

	// InstanceBufferCount returns the number of instance table copies.
	InstanceBufferCount() int

	// InstanceTable returns instance table copy i, or nil before Initialize.
	InstanceTable(i int) Table

	// GeometryInstanceTable returns the geometry-instance table, or nil before Initialize.
	GeometryInstanceTable() Table

	// MaterialTable returns the material table, or nil before Initialize.
	MaterialTable() Table

	// Stats returns a snapshot of the scene's bookkeeping.
	Stats() Stats

	// Finalize waits for all device work, then releases the TLAS, the geometry, the tables and the pools.
	Finalize()
}

var _ SceneHandler = &sceneHandler{}

// NewSceneHandler creates a scene handler over backend b. Panics if b is nil.
// Call Initialize before use.
//
// Parameters:
//   - b: the backend that owns all device resources
//   - options: functional options applied after the defaults
//
// Returns:
//   - SceneHandler: the new handler
func NewSceneHandler(b backend.Backend, options ...SceneHandlerBuilderOption) SceneHandler {
	if b == nil {
		panic("scene: nil backend")
	}
	s := &sceneHandler{
		mu:                   &sync.RWMutex{},
		b:                    b,
		maxMaterials:         DefaultMaxMaterials,
		maxGeometryInstances: DefaultMaxGeometryInstances,
		maxInstances:         DefaultMaxInstances,
		instanceBuffers:      DefaultInstanceBufferCount,
		defaultMaterialSlot:  DefaultMaterialSlot,
		hashMode:             geometry.HashFull,
		dedup:                true,
		computeWorkers:       max(runtime.NumCPU()-1, 1),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// guard turns a panic escaping a public operation into a logged failure.
func (s *sceneHandler) guard(op string, ok *bool) {
	if r := recover(); r != nil {
		logger.Errorf("%s: %v", op, errs.Recovered(r))
		*ok = false
	}
}

func (s *sceneHandler) Initialize() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = errs.Recovered(r)
			logger.Errorf("initialize: %v", err)
			s.release()
		}
	}()

	if s.initialized {
		logger.Warning("scene already initialized")
		return nil
	}

	s.materialSlots = slot.NewPool("materials", s.maxMaterials)
	s.geomInstSlots = slot.NewPool("geometry instances", s.maxGeometryInstances)
	s.instanceSlots = slot.NewPool("instances", s.maxInstances)
	s.materials = make(map[material.Material]int)
	s.nodes = make(map[node.NodeID]*NodeResources)
	s.tlasOwners = nil

	fail := func(step string, e error) error {
		s.release()
		err := fmt.Errorf("initialize %s: %w", step, errors.Join(errs.ErrBackendBuild, e))
		logger.Warning(err)
		return err
	}

	if s.stream == 0 {
		st, e := s.b.CreateStream()
		if e != nil {
			return fail("stream", e)
		}
		s.stream = st
		s.ownsStream = true
	}
	if s.materialTable, err = NewTable(s.b, "material data", material.GPUMaterialSize, s.maxMaterials); err != nil {
		return fail("material table", err)
	}
	if s.geomInstTable, err = NewTable(s.b, "geometry instance data", GPUGeometryInstanceDataSize, s.maxGeometryInstances); err != nil {
		return fail("geometry instance table", err)
	}
	tables := make([]Table, 0, s.instanceBuffers)
	for i := range s.instanceBuffers {
		t, e := NewTable(s.b, fmt.Sprintf("instance data %d", i), GPUInstanceDataSize, s.maxInstances)
		if e != nil {
			for _, made := range tables {
				made.Destroy()
			}
			return fail("instance table", e)
		}
		tables = append(tables, t)
	}
	s.instances = newInstanceRing(tables)

	s.cache = geometry.NewCache(s.retire)
	s.tlas = accel.NewTLAS(s.b, accel.WithLabel("scene tlas"), accel.WithInitialInstances(min(s.maxInstances, 1024)))
	s.pool = worker.NewDynamicWorkerPool(s.computeWorkers, defaultComputeQueueDepth, defaultComputeWorkerIdleTime)

	s.initialized = true
	if e := s.writeDefaultMaterial(); e != nil {
		return fail("default material", e)
	}

	logger.Infof("scene initialized: %d materials, %d geometry instances, %d instances x%d",
		s.maxMaterials, s.maxGeometryInstances, s.maxInstances, s.instanceBuffers)
	return nil
}

// writeDefaultMaterial claims the default material slot on the fresh pool and writes the default material to it.
func (s *sceneHandler) writeDefaultMaterial() error {
	if s.defaultMaterialSlot >= s.maxMaterials {
		logger.Warningf("default material slot %d out of range, using 0", s.defaultMaterialSlot)
		s.defaultMaterialSlot = 0
	}
	var below []int
	defer func() {
		for _, sl := range below {
			_ = s.materialSlots.Release(sl)
		}
	}()
	for {
		sl, err := s.materialSlots.Acquire()
		if err != nil {
			return err
		}
		if sl == s.defaultMaterialSlot {
			break
		}
		below = append(below, sl)
	}

	m := material.NewMaterial(material.WithName("default"))
	rec := m.GPU()
	if err := s.materialTable.Write(s.defaultMaterialSlot, rec.Marshal()); err != nil {
		return err
	}
	s.materials[m] = s.defaultMaterialSlot
	return nil
}

func (s *sceneHandler) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// retire defers destruction of a group until no built TLAS can reference its BLAS.
func (s *sceneHandler) retire(g *geometry.Group) {
	s.retired = append(s.retired, g)
}

func (s *sceneHandler) destroyRetired() {
	if len(s.retired) == 0 {
		return
	}
	if err := s.b.WaitAll(); err != nil {
		logger.Warningf("waiting before releasing %d retired geometry groups: %v", len(s.retired), err)
	}
	for _, g := range s.retired {
		g.Destroy(s.b)
	}
	logger.Debugf("released %d retired geometry groups", len(s.retired))
	s.retired = s.retired[:0]
}

func (s *sceneHandler) hashFor(mdl model.Model, id node.NodeID) geometry.Hash {
	h := s.hashMode.Of(mdl)
	if !s.dedup {
		h = geometry.Unique(h, uint64(id))
	}
	return h
}

// materialSlotFor resolves the material of the model's first non-empty surface.
func (s *sceneHandler) materialSlotFor(mdl model.Model) (int, material.Material) {
	for _, surf := range mdl.Surfaces() {
		if len(surf.Triangles) == 0 {
			continue
		}
		if surf.Material != nil {
			if slot, ok := s.materials[surf.Material]; ok {
				return slot, surf.Material
			}
		}
		return s.defaultMaterialSlot, surf.Material
	}
	return s.defaultMaterialSlot, nil
}

func instanceRecord(m mgl32.Mat4, prev [12]float32, geomSlot int, emissive bool) GPUInstanceData {
	rec := GPUInstanceData{
		Transform:     common.RowMajor3x4(m),
		PrevTransform: prev,
		GeomInstSlot:  uint32(geomSlot),
		EmissiveScale: 1,
		UniformScale:  float32(math.Cbrt(math.Abs(float64(m.Mat3().Det())))),
	}
	nm := common.NormalMatrix(m)
	for r := range 3 {
		for c := range 3 {
			rec.NormalMatrix[r*4+c] = nm.At(r, c)
		}
	}
	if emissive {
		rec.IsEmissive = 1
	}
	return rec
}

func (s *sceneHandler) AddRenderableNode(h node.Handle) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("add node", &ok)

	if !s.initialized {
		logger.Warningf("add node %s: %v", h.ID(), errs.ErrNotInitialized)
		return false
	}
	n, alive := h.Resolve()
	if !alive {
		logger.Warningf("cannot add node %s: handle expired", h.ID())
		return false
	}
	id := n.ID()
	if id == node.InvalidID {
		logger.Warning("cannot add node: invalid ID")
		return false
	}
	if _, exists := s.nodes[id]; exists {
		logger.Debugf("node %s already in scene", id)
		return true
	}
	mdl := n.Model()
	if mdl == nil {
		logger.Warningf("cannot add node %s: no model", id)
		return false
	}
	if err := mdl.Validate(); err != nil {
		logger.Warningf("cannot add node %s: %v", id, err)
		return false
	}

	instSlot, err := s.instanceSlots.Acquire()
	if err != nil {
		logger.Warningf("cannot add node %s: %v", id, err)
		return false
	}

	hash := s.hashFor(mdl, id)
	group, reused, err := s.cache.Intern(hash, func() (*geometry.Group, error) {
		return geometry.NewGroup(s.b, s.stream, mdl, s.pool)
	})
	if err != nil {
		logger.Warningf("cannot add node %s: %v", id, err)
		_ = s.instanceSlots.Release(instSlot)
		return false
	}

	rollbackGeometry := func() {
		_ = s.instanceSlots.Release(instSlot)
		if _, err := s.cache.Release(hash); err != nil {
			logger.Errorf("rollback of node %s: %v", id, err)
		}
	}

	geomSlot, err := s.geomInstSlots.Acquire()
	if err != nil {
		logger.Warningf("cannot add node %s: %v", id, err)
		rollbackGeometry()
		return false
	}

	transform := n.WorldTransform()
	tlasIndex, err := s.tlas.AddInstance(backend.Instance{
		Transform:   common.RowMajor3x4(transform),
		InstanceID:  uint32(instSlot),
		Mask:        backend.DefaultInstanceMask,
		Traversable: group.Traversable(),
	})
	if err != nil {
		logger.Warningf("cannot place instance for node %s: %v", id, err)
		_ = s.geomInstSlots.Release(geomSlot)
		rollbackGeometry()
		return false
	}

	matSlot, mat := s.materialSlotFor(mdl)
	emissive := n.HasFlag(node.FlagEmissive) || (mat != nil && mat.IsEmissive())

	geomRec := GPUGeometryInstanceData{
		VertexBuffer:   uint64(group.VertexBuffer),
		TriangleBuffer: uint64(group.Surfaces[0].TriangleBuffer),
		VertexCount:    group.VertexCount,
		TriangleCount:  uint32(group.TriangleCount()),
		MaterialSlot:   uint32(matSlot),
		GeomInstSlot:   uint32(geomSlot),
		SurfaceCount:   uint32(len(group.Surfaces)),
	}
	rowMajor := common.RowMajor3x4(transform)
	err = errors.Join(
		s.geomInstTable.Write(geomSlot, geomRec.Marshal()),
		s.instances.put(instSlot, instanceRecord(transform, rowMajor, geomSlot, emissive)),
	)
	if err != nil {
		logger.Warningf("cannot write tables for node %s: %v", id, err)
		_ = s.geomInstTable.Clear(geomSlot)
		_ = s.instances.remove(instSlot)
		// the instance was appended last, so removing it moves nothing
		_, _ = s.tlas.RemoveInstance(tlasIndex)
		_ = s.geomInstSlots.Release(geomSlot)
		rollbackGeometry()
		return false
	}

	n.SetFlag(node.FlagStoredInScene, true)
	s.nodes[id] = &NodeResources{
		Handle:       h,
		InstanceSlot: instSlot,
		GeomInstSlot: geomSlot,
		Hash:         hash,
		TLASIndex:    tlasIndex,
		MaterialSlot: matSlot,
		Emissive:     emissive,
	}
	s.tlasOwners = append(s.tlasOwners, id)
	s.hasGeometry = true

	logger.Infof("added node %s (instance slot %d, geometry %s, reused %v)", id, instSlot, hash, reused)
	logger.Debugf("scene now contains %d nodes", len(s.nodes))
	return true
}

func (s *sceneHandler) RemoveRenderableNode(h node.Handle) bool {
	return s.RemoveRenderableNodeByID(h.ID())
}

func (s *sceneHandler) RemoveRenderableNodeByID(id node.NodeID) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("remove node", &ok)

	if !s.initialized {
		logger.Warningf("remove node %s: %v", id, errs.ErrNotInitialized)
		return false
	}
	res, exists := s.nodes[id]
	if !exists {
		logger.Debugf("node %s not found in scene", id)
		return false
	}

	var err error
	err = errors.Join(err, s.instanceSlots.Release(res.InstanceSlot))
	err = errors.Join(err, s.geomInstSlots.Release(res.GeomInstSlot))
	err = errors.Join(err, s.instances.remove(res.InstanceSlot))
	err = errors.Join(err, s.geomInstTable.Clear(res.GeomInstSlot))
	if _, e := s.cache.Release(res.Hash); e != nil {
		err = errors.Join(err, e)
	}

	moved, e := s.tlas.RemoveInstance(res.TLASIndex)
	err = errors.Join(err, e)
	last := len(s.tlasOwners) - 1
	if moved >= 0 {
		movedID := s.tlasOwners[moved]
		s.tlasOwners[res.TLASIndex] = movedID
		s.nodes[movedID].TLASIndex = res.TLASIndex
	}
	if last >= 0 {
		s.tlasOwners = s.tlasOwners[:last]
	}
	if err != nil {
		logger.Errorf("inconsistent state while removing node %s: %v", id, err)
	}

	if n, alive := res.Handle.Resolve(); alive {
		n.SetFlag(node.FlagStoredInScene, false)
	}
	delete(s.nodes, id)
	if len(s.nodes) == 0 {
		s.hasGeometry = false
	}

	logger.Infof("removed node %s", id)
	logger.Debugf("scene now contains %d nodes", len(s.nodes))
	return true
}

func (s *sceneHandler) UpdateNodeTransform(h node.Handle) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("update transform", &ok)

	if !s.initialized {
		logger.Warningf("update node %s: %v", h.ID(), errs.ErrNotInitialized)
		return false
	}
	n, alive := h.Resolve()
	if !alive {
		return false
	}
	res, exists := s.nodes[n.ID()]
	if !exists {
		return false
	}

	transform := n.WorldTransform()
	prev := common.RowMajor3x4(transform)
	if old, ok := s.instances.get(res.InstanceSlot); ok {
		prev = old.Transform
	}
	if err := s.tlas.UpdateTransform(res.TLASIndex, common.RowMajor3x4(transform)); err != nil {
		logger.Warningf("update node %s: %v", n.ID(), err)
		return false
	}
	if err := s.instances.put(res.InstanceSlot, instanceRecord(transform, prev, res.GeomInstSlot, res.Emissive)); err != nil {
		logger.Warningf("update node %s: %v", n.ID(), err)
		return false
	}
	res.PreviousMoveTime = time.Now()
	n.SetFlag(node.FlagTransformDirty, false)
	return true
}

func (s *sceneHandler) BuildAccelerationStructures() (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.guard("build acceleration structures", &ok)

	if !s.initialized {
		logger.Warningf("build acceleration structures: %v", errs.ErrNotInitialized)
		return false
	}
	if err := s.tlas.Rebuild(s.stream); err != nil {
		logger.Warningf("acceleration structure build failed, keeping handle %d: %v", s.tlas.Handle(), err)
		return false
	}
	s.destroyRetired()
	logger.Debugf("traversable handle %d over %d instances", s.tlas.Handle(), s.tlas.InstanceCount())
	return true
}

func (s *sceneHandler) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func (s *sceneHandler) HasGeometry() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasGeometry
}

func (s *sceneHandler) TraversableHandle() backend.Traversable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized || !s.hasGeometry {
		return 0
	}
	return s.tlas.Handle()
}

func (s *sceneHandler) Resources(id node.NodeID) (NodeResources, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.nodes[id]; ok {
		return *res, true
	}
	return NodeResources{}, false
}

func (s *sceneHandler) AddMaterial(m material.Material) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return -1, errs.ErrNotInitialized
	}
	return s.addMaterialLocked(m)
}

func (s *sceneHandler) addMaterialLocked(m material.Material) (int, error) {
	if slot, ok := s.materials[m]; ok {
		return slot, nil
	}
	slot, err := s.materialSlots.Acquire()
	if err != nil {
		return -1, fmt.Errorf("material %q: %w", m.Name(), err)
	}
	rec := m.GPU()
	if err := s.materialTable.Write(slot, rec.Marshal()); err != nil {
		_ = s.materialSlots.Release(slot)
		return -1, fmt.Errorf("material %q: %w", m.Name(), err)
	}
	s.materials[m] = slot
	logger.Debugf("material %q in slot %d", m.Name(), slot)
	return slot, nil
}

func (s *sceneHandler) RemoveMaterial(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errs.ErrNotInitialized
	}
	if slot == s.defaultMaterialSlot {
		return fmt.Errorf("material slot %d is the default: %w", slot, errs.ErrInvalidInput)
	}
	if err := s.materialSlots.Release(slot); err != nil {
		return fmt.Errorf("material slot %d: %w", slot, errors.Join(errs.ErrInvalidInput, err))
	}
	for m, sl := range s.materials {
		if sl == slot {
			delete(s.materials, m)
		}
	}
	return s.materialTable.Clear(slot)
}

func (s *sceneHandler) SetStream(st backend.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsStream && s.stream != st {
		s.b.DestroyStream(s.stream)
		s.ownsStream = false
	}
	s.stream = st
}

func (s *sceneHandler) SetActiveBuffer(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return errs.ErrNotInitialized
	}
	n := len(s.instances.tables)
	return s.instances.setActive(((index % n) + n) % n)
}

func (s *sceneHandler) InstanceBufferCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instanceBuffers
}

func (s *sceneHandler) InstanceTable(i int) Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.instances == nil || len(s.instances.tables) == 0 {
		return nil
	}
	n := len(s.instances.tables)
	return s.instances.tables[((i%n)+n)%n]
}

func (s *sceneHandler) GeometryInstanceTable() Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geomInstTable
}

func (s *sceneHandler) MaterialTable() Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.materialTable
}

func usage(p slot.Pool) SlotUsage {
	if p == nil {
		return SlotUsage{}
	}
	return SlotUsage{InUse: p.InUse(), Capacity: p.Capacity()}
}

func (s *sceneHandler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Nodes:             len(s.nodes),
		HasGeometry:       s.hasGeometry,
		Instances:         usage(s.instanceSlots),
		GeometryInstances: usage(s.geomInstSlots),
		Materials:         usage(s.materialSlots),
		Retired:           len(s.retired),
	}
	if s.initialized {
		st.TLASState = s.tlas.State()
		st.TLAS = s.tlas.Metrics()
		st.Geometry = s.cache.Stats()
		if s.hasGeometry {
			st.Handle = s.tlas.Handle()
		}
	}
	return st
}

func (s *sceneHandler) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	if err := s.b.WaitAll(); err != nil {
		logger.Warningf("finalize: outstanding work failed: %v", err)
	}
	for _, res := range s.nodes {
		if n, alive := res.Handle.Resolve(); alive {
			n.SetFlag(node.FlagStoredInScene, false)
		}
	}
	s.release()
	logger.Info("scene finalized")
}

// release frees everything Initialize created, top-down. The caller holds s.mu.
func (s *sceneHandler) release() {
	if s.tlas != nil {
		s.tlas.Destroy()
		s.tlas = nil
	}
	if s.cache != nil {
		s.cache.Clear()
		s.cache = nil
	}
	for _, g := range s.retired {
		g.Destroy(s.b)
	}
	s.retired = nil
	if s.instances != nil {
		s.instances.destroy()
		s.instances = nil
	}
	if s.geomInstTable != nil {
		s.geomInstTable.Destroy()
		s.geomInstTable = nil
	}
	if s.materialTable != nil {
		s.materialTable.Destroy()
		s.materialTable = nil
	}
	if s.pool != nil {
		s.pool.Stop()
		s.pool = nil
	}
	if s.ownsStream && s.stream != 0 {
		s.b.DestroyStream(s.stream)
		s.stream = 0
		s.ownsStream = false
	}
	s.instanceSlots, s.geomInstSlots, s.materialSlots = nil, nil, nil
	s.nodes = nil
	s.materials = nil
	s.tlasOwners = nil
	s.hasGeometry = false
	s.initialized = false
}
