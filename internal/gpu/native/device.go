// Package native implements gpu.Device on top of the gogpu/wgpu hardware
// abstraction layer. It runs headless: the "swapchain" is an ordinary
// render-target texture sized to the viewport, which keeps the frame
// lifecycle identical to a windowed run.
package native

import (
	"sync"
	"unsafe"

	types "github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/pkg/schema"
)

type bufferRec struct {
	buf  hal.Buffer
	size int
}

type transferRec struct {
	data   []byte
	mapped bool
}

type textureRec struct {
	tex  hal.Texture
	view hal.TextureView
	desc gpu.TextureDescriptor
}

type shaderRec struct {
	module hal.ShaderModule
	desc   gpu.ShaderDescriptor
}

type pipelineRec struct {
	pipe          hal.RenderPipeline
	uniformLayout hal.BindGroupLayout
	samplerLayout hal.BindGroupLayout
	samplerCount  int
	desc          gpu.PipelineDescriptor
}

type cmdRec struct {
	encoder     hal.CommandEncoder
	vertUniform hal.Buffer
	fragUniform hal.Buffer
	transient   []hal.Buffer
	openPass    gpu.ID
}

type passRec struct {
	cmd      gpu.ID
	rp       hal.RenderPassEncoder
	copying  bool
	pipeline *pipelineRec
	samplers []gpu.TextureSamplerBinding
	dirty    bool
}

// Device is the gogpu/wgpu-backed gpu.Device.
type Device struct {
	backend  gpu.Backend
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	mu        sync.Mutex
	nextID    uint64
	buffers   map[gpu.ID]*bufferRec
	transfers map[gpu.ID]*transferRec
	textures  map[gpu.ID]*textureRec
	samplers  map[gpu.ID]hal.Sampler
	shaders   map[gpu.ID]*shaderRec
	pipelines map[gpu.ID]*pipelineRec
	cmds      map[gpu.ID]*cmdRec
	passes    map[gpu.ID]*passRec

	// shared fallback uniform buffer for pipelines drawn before any push
	dummyUniform hal.Buffer

	swapWidth   int
	swapHeight  int
	swapTexture gpu.ID
}

var _ gpu.Device = (*Device)(nil)

// Open creates a Device on the requested backend. Only Vulkan is wired on
// this platform; metal and dx12 selectors fail so the caller can retry with
// auto, which also resolves to Vulkan.
func Open(backend gpu.Backend, width, height int) (*Device, error) {
	switch backend {
	case gpu.BackendVulkan, gpu.BackendAuto:
	default:
		return nil, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"backend %q is not available on this platform", backend)
	}

	halBackend, ok := hal.GetBackend(types.BackendVulkan)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeResourceCreation, "vulkan backend not compiled in")
	}

	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create instance: %s", err.Error()).WithCause(err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return nil, schema.NewError(schema.ErrCodeResourceCreation, "no GPU adapters found")
	}

	selected := adapters[0]
	for _, a := range adapters {
		if a.Info.DeviceType == types.DeviceTypeDiscreteGPU {
			selected = a
			break
		}
	}

	openDev, err := selected.Adapter.Open(types.Features(0), types.DefaultLimits())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"open adapter %q: %s", selected.Info.Name, err.Error()).WithCause(err)
	}

	d := &Device{
		backend:    gpu.BackendVulkan,
		instance:   instance,
		device:     openDev.Device,
		queue:      openDev.Queue,
		buffers:    make(map[gpu.ID]*bufferRec),
		transfers:  make(map[gpu.ID]*transferRec),
		textures:   make(map[gpu.ID]*textureRec),
		samplers:   make(map[gpu.ID]hal.Sampler),
		shaders:    make(map[gpu.ID]*shaderRec),
		pipelines:  make(map[gpu.ID]*pipelineRec),
		cmds:       make(map[gpu.ID]*cmdRec),
		passes:     make(map[gpu.ID]*passRec),
		swapWidth:  width,
		swapHeight: height,
	}

	d.dummyUniform, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fallback-uniform",
		Size:  256,
		Usage: types.BufferUsageUniform | types.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create fallback uniform: %s", err.Error()).WithCause(err)
	}

	return d, nil
}

func (d *Device) Backend() gpu.Backend { return d.backend }

func (d *Device) id() gpu.ID {
	d.nextID++
	return gpu.ID(d.nextID)
}

func convertBufferUsage(kind gpu.BufferKind) types.BufferUsage {
	switch kind {
	case gpu.BufferIndex:
		return types.BufferUsageIndex | types.BufferUsageCopyDst
	case gpu.BufferUniform:
		return types.BufferUsageUniform | types.BufferUsageCopyDst
	default:
		return types.BufferUsageVertex | types.BufferUsageCopyDst
	}
}

func convertTextureFormat(f gpu.TextureFormat) types.TextureFormat {
	switch f {
	case gpu.TextureBGRA8Unorm:
		return types.TextureFormatBGRA8Unorm
	case gpu.TextureRGBA16Float:
		return types.TextureFormatRGBA16Float
	case gpu.TextureR8Unorm:
		return types.TextureFormatR8Unorm
	case gpu.TextureD32Float:
		return types.TextureFormatDepth32Float
	case gpu.TextureD24UnormS8:
		return types.TextureFormatDepth24PlusStencil8
	default:
		return types.TextureFormatRGBA8Unorm
	}
}

func convertTextureUsage(u gpu.TextureUsage) types.TextureUsage {
	var out types.TextureUsage
	if u&gpu.TextureUsageColorTarget != 0 {
		out |= types.TextureUsageRenderAttachment
	}
	if u&gpu.TextureUsageDepthTarget != 0 {
		out |= types.TextureUsageRenderAttachment
	}
	if u&gpu.TextureUsageSampled != 0 {
		out |= types.TextureUsageTextureBinding
	}
	if u&gpu.TextureUsageCopySrc != 0 {
		out |= types.TextureUsageCopySrc
	}
	if u&gpu.TextureUsageCopyDst != 0 {
		out |= types.TextureUsageCopyDst
	}
	return out
}

func convertAttrFormat(f gpu.VertexAttrFormat) types.VertexFormat {
	switch f {
	case gpu.AttrFloat32x2:
		return types.VertexFormatFloat32x2
	case gpu.AttrFloat32x3:
		return types.VertexFormatFloat32x3
	case gpu.AttrUnorm8x4:
		return types.VertexFormatUnorm8x4
	default:
		return types.VertexFormatFloat32x4
	}
}

func convertCullMode(c gpu.CullMode) types.CullMode {
	switch c {
	case gpu.CullFront:
		return types.CullModeFront
	case gpu.CullNone:
		return types.CullModeNone
	default:
		return types.CullModeBack
	}
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.ID, error) {
	if desc.Size <= 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"buffer %q has non-positive size %d", desc.Label, desc.Size)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  uint64(desc.Size),
		Usage: convertBufferUsage(desc.Kind),
	})
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create buffer %q: %s", desc.Label, err.Error()).WithCause(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.buffers[id] = &bufferRec{buf: buf, size: desc.Size}
	return id, nil
}

func (d *Device) ReleaseBuffer(id gpu.ID) {
	d.mu.Lock()
	rec, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyBuffer(rec.buf)
	}
}

// Transfer buffers are host memory; the copy pass turns them into
// queue.WriteBuffer / WriteTexture calls.
func (d *Device) CreateTransferBuffer(size int) (gpu.ID, error) {
	if size <= 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"transfer buffer has non-positive size %d", size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.transfers[id] = &transferRec{data: make([]byte, size)}
	return id, nil
}

func (d *Device) MapTransferBuffer(id gpu.ID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.transfers[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d not found", id)
	}
	rec.mapped = true
	return rec.data, nil
}

func (d *Device) UnmapTransferBuffer(id gpu.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.transfers[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d not found", id)
	}
	rec.mapped = false
	return nil
}

func (d *Device) ReleaseTransferBuffer(id gpu.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.transfers, id)
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.ID, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"texture %q has invalid extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	format := convertTextureFormat(desc.Format)
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     types.TextureDimension2D,
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create texture %q: %s", desc.Label, err.Error()).WithCause(err)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label,
		Format:        format,
		Dimension:     types.TextureViewDimension2D,
		Aspect:        types.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create texture view %q: %s", desc.Label, err.Error()).WithCause(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.textures[id] = &textureRec{tex: tex, view: view, desc: desc}
	return id, nil
}

func (d *Device) ReleaseTexture(id gpu.ID) {
	d.mu.Lock()
	rec, ok := d.textures[id]
	delete(d.textures, id)
	if id == d.swapTexture {
		d.swapTexture = gpu.InvalidID
	}
	d.mu.Unlock()
	if ok {
		d.device.DestroyTextureView(rec.view)
		d.device.DestroyTexture(rec.tex)
	}
}

func (d *Device) CreateSampler(desc gpu.SamplerDescriptor) (gpu.ID, error) {
	filter := types.FilterModeNearest
	if desc.Filter == gpu.FilterLinear {
		filter = types.FilterModeLinear
	}
	s, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: types.AddressModeClampToEdge,
		AddressModeV: types.AddressModeClampToEdge,
		AddressModeW: types.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: filter,
	})
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create sampler %q: %s", desc.Label, err.Error()).WithCause(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.samplers[id] = s
	return id, nil
}

func (d *Device) ReleaseSampler(id gpu.ID) {
	d.mu.Lock()
	s, ok := d.samplers[id]
	delete(d.samplers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroySampler(s)
	}
}

func (d *Device) CreateShader(desc gpu.ShaderDescriptor) (gpu.ID, error) {
	if len(desc.Code) == 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"shader %q has empty code", desc.Label)
	}
	var source hal.ShaderSource
	switch desc.Format {
	case gpu.FormatWGSL:
		source = hal.ShaderSource{WGSL: string(desc.Code)}
	case gpu.FormatSPIRV:
		if len(desc.Code)%4 != 0 {
			return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
				"shader %q SPIR-V length %d is not word aligned", desc.Label, len(desc.Code))
		}
		words := make([]uint32, len(desc.Code)/4)
		for i := range words {
			words[i] = uint32(desc.Code[i*4]) |
				uint32(desc.Code[i*4+1])<<8 |
				uint32(desc.Code[i*4+2])<<16 |
				uint32(desc.Code[i*4+3])<<24
		}
		source = hal.ShaderSource{SPIRV: words}
	default:
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"shader %q format not supported by the vulkan backend", desc.Label)
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: source,
	})
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create shader %q: %s", desc.Label, err.Error()).WithCause(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.shaders[id] = &shaderRec{module: module, desc: desc}
	return id, nil
}

func (d *Device) ReleaseShader(id gpu.ID) {
	d.mu.Lock()
	rec, ok := d.shaders[id]
	delete(d.shaders, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyShaderModule(rec.module)
	}
}

func (d *Device) CreateRenderPipeline(desc gpu.PipelineDescriptor) (gpu.ID, error) {
	d.mu.Lock()
	vs, vok := d.shaders[desc.VertexShader]
	fs, fok := d.shaders[desc.FragmentShader]
	d.mu.Unlock()
	if !vok || !fok {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"pipeline %q references unknown shaders", desc.Label)
	}

	uniformLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: desc.Label + "/uniforms",
		Entries: []types.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: types.ShaderStageVertex,
				Buffer:     &types.BufferBindingLayout{Type: types.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: types.ShaderStageFragment,
				Buffer:     &types.BufferBindingLayout{Type: types.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"pipeline %q uniform layout: %s", desc.Label, err.Error()).WithCause(err)
	}

	layouts := []hal.BindGroupLayout{uniformLayout}
	samplerCount := fs.desc.Samplers
	var samplerLayout hal.BindGroupLayout
	if samplerCount > 0 {
		entries := make([]types.BindGroupLayoutEntry, 0, samplerCount*2)
		for i := 0; i < samplerCount; i++ {
			entries = append(entries,
				types.BindGroupLayoutEntry{
					Binding:    uint32(i * 2),
					Visibility: types.ShaderStageFragment,
					Texture: &types.TextureBindingLayout{
						SampleType:    types.TextureSampleTypeFloat,
						ViewDimension: types.TextureViewDimension2D,
					},
				},
				types.BindGroupLayoutEntry{
					Binding:    uint32(i*2 + 1),
					Visibility: types.ShaderStageFragment,
					Sampler:    &types.SamplerBindingLayout{Type: types.SamplerBindingTypeFiltering},
				},
			)
		}
		samplerLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   desc.Label + "/samplers",
			Entries: entries,
		})
		if err != nil {
			d.device.DestroyBindGroupLayout(uniformLayout)
			return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
				"pipeline %q sampler layout: %s", desc.Label, err.Error()).WithCause(err)
		}
		layouts = append(layouts, samplerLayout)
	}

	pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(uniformLayout)
		if samplerLayout != nil {
			d.device.DestroyBindGroupLayout(samplerLayout)
		}
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"pipeline %q layout: %s", desc.Label, err.Error()).WithCause(err)
	}

	var vertexBuffers []types.VertexBufferLayout
	if desc.Layout.Stride > 0 {
		attrs := make([]types.VertexAttribute, len(desc.Layout.Attributes))
		for i, a := range desc.Layout.Attributes {
			attrs[i] = types.VertexAttribute{
				Format:         convertAttrFormat(a.Format),
				Offset:         uint64(a.Offset),
				ShaderLocation: uint32(a.Location),
			}
		}
		vertexBuffers = []types.VertexBufferLayout{{
			ArrayStride: uint64(desc.Layout.Stride),
			StepMode:    types.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}

	targets := make([]types.ColorTargetState, len(desc.ColorTargets))
	for i, t := range desc.ColorTargets {
		state := types.ColorTargetState{
			Format:    convertTextureFormat(t.Format),
			WriteMask: types.ColorWriteMaskAll,
		}
		if t.Blend {
			blend := types.BlendStatePremultiplied()
			state.Blend = &blend
		}
		targets[i] = state
	}

	halDesc := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Vertex: hal.VertexState{
			Module:     vs.module,
			EntryPoint: vs.desc.Entrypoint,
			Buffers:    vertexBuffers,
		},
		Fragment: &hal.FragmentState{
			Module:     fs.module,
			EntryPoint: fs.desc.Entrypoint,
			Targets:    targets,
		},
		Multisample: types.MultisampleState{Count: 1, Mask: 0xFFFFFFFF},
		Primitive: types.PrimitiveState{
			Topology: types.PrimitiveTopologyTriangleList,
			CullMode: convertCullMode(desc.Cull),
		},
	}
	if desc.DepthTest || desc.DepthWrite {
		compare := types.CompareFunctionLessEqual
		if !desc.DepthTest {
			compare = types.CompareFunctionAlways
		}
		halDesc.DepthStencil = &hal.DepthStencilState{
			Format:            convertTextureFormat(desc.DepthFormat),
			DepthWriteEnabled: desc.DepthWrite,
			DepthCompare:      compare,
			StencilFront: hal.StencilFaceState{
				Compare: types.CompareFunctionAlways,
			},
			StencilBack: hal.StencilFaceState{
				Compare: types.CompareFunctionAlways,
			},
		}
	}

	pipe, err := d.device.CreateRenderPipeline(halDesc)
	if err != nil {
		d.device.DestroyPipelineLayout(pipelineLayout)
		d.device.DestroyBindGroupLayout(uniformLayout)
		if samplerLayout != nil {
			d.device.DestroyBindGroupLayout(samplerLayout)
		}
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create pipeline %q: %s", desc.Label, err.Error()).WithCause(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.pipelines[id] = &pipelineRec{
		pipe:          pipe,
		uniformLayout: uniformLayout,
		samplerLayout: samplerLayout,
		samplerCount:  samplerCount,
		desc:          desc,
	}
	return id, nil
}

func (d *Device) ReleasePipeline(id gpu.ID) {
	d.mu.Lock()
	rec, ok := d.pipelines[id]
	delete(d.pipelines, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyRenderPipeline(rec.pipe)
		d.device.DestroyBindGroupLayout(rec.uniformLayout)
		if rec.samplerLayout != nil {
			d.device.DestroyBindGroupLayout(rec.samplerLayout)
		}
	}
}

func (d *Device) AcquireCommandBuffer() (gpu.ID, error) {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
			"create command encoder: %s", err.Error()).WithCause(err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
			"begin encoding: %s", err.Error()).WithCause(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.cmds[id] = &cmdRec{encoder: encoder}
	return id, nil
}

// AcquireSwapchainTexture hands out the headless presentation target,
// (re)creating it when the viewport size changed. Headless rendering always
// has an image available.
func (d *Device) AcquireSwapchainTexture(cmd gpu.ID) (gpu.SwapchainTexture, error) {
	d.mu.Lock()
	_, ok := d.cmds[cmd]
	cur := d.swapTexture
	var curDesc gpu.TextureDescriptor
	if rec, live := d.textures[cur]; live {
		curDesc = rec.desc
	} else {
		cur = gpu.InvalidID
	}
	width, height := d.swapWidth, d.swapHeight
	d.mu.Unlock()

	if !ok {
		return gpu.SwapchainTexture{}, schema.NewErrorf(schema.ErrCodeExecution,
			"command buffer %d not found", cmd)
	}

	if cur == gpu.InvalidID || curDesc.Width != width || curDesc.Height != height {
		if cur != gpu.InvalidID {
			d.ReleaseTexture(cur)
		}
		id, err := d.CreateTexture(gpu.TextureDescriptor{
			Label:  "swapchain",
			Width:  width,
			Height: height,
			Format: gpu.TextureBGRA8Unorm,
			Usage:  gpu.TextureUsageColorTarget | gpu.TextureUsageCopySrc | gpu.TextureUsageSampled,
		})
		if err != nil {
			return gpu.SwapchainTexture{}, err
		}
		d.mu.Lock()
		d.swapTexture = id
		d.mu.Unlock()
		cur = id
	}

	return gpu.SwapchainTexture{Texture: cur, Width: width, Height: height}, nil
}

// Resize changes the headless swapchain extent; the texture is recreated on
// the next acquire.
func (d *Device) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.swapWidth = width
	d.swapHeight = height
}

func (d *Device) Submit(cmd gpu.ID) error {
	d.mu.Lock()
	rec, ok := d.cmds[cmd]
	if ok {
		delete(d.cmds, cmd)
	}
	d.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	if rec.openPass != gpu.InvalidID {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"command buffer %d submitted with an open pass", cmd)
	}

	cb, err := rec.encoder.EndEncoding()
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "end encoding: %s", err.Error()).WithCause(err)
	}

	index, err := d.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution, "submit: %s", err.Error()).WithCause(err)
	}
	if err := d.waitSubmission(index); err != nil {
		return err
	}

	for _, b := range rec.transient {
		d.device.DestroyBuffer(b)
	}
	d.device.FreeCommandBuffer(cb)
	return nil
}

// waitSubmission blocks until the GPU has completed the given submission.
// PollCompleted covers the already-finished case; otherwise WaitIdle drains
// the queue, which is equivalent on this single-queue headless device.
func (d *Device) waitSubmission(index uint64) error {
	if d.queue.PollCompleted() >= index {
		return nil
	}
	if err := d.device.WaitIdle(); err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"wait for submission %d: %s", index, err.Error()).WithCause(err)
	}
	return nil
}

func (d *Device) BeginCopyPass(cmd gpu.ID) (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.cmds[cmd]
	if !ok {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	if rec.openPass != gpu.InvalidID {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
			"command buffer %d already has an open pass", cmd)
	}
	id := d.id()
	d.passes[id] = &passRec{cmd: cmd, copying: true}
	rec.openPass = id
	return id, nil
}

func (d *Device) UploadToBuffer(pass gpu.ID, src gpu.TransferRegion, dst gpu.BufferRegion) error {
	d.mu.Lock()
	p, pok := d.passes[pass]
	tr, tok := d.transfers[src.Buffer]
	buf, bok := d.buffers[dst.Buffer]
	d.mu.Unlock()
	if !pok || !p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "copy pass %d is not open", pass)
	}
	if !tok {
		return schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d not found", src.Buffer)
	}
	if !bok {
		return schema.NewErrorf(schema.ErrCodeExecution, "buffer %d not found", dst.Buffer)
	}
	if src.Offset+dst.Size > len(tr.data) || dst.Offset+dst.Size > buf.size {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"copy of %d bytes exceeds source or destination", dst.Size)
	}
	if err := d.queue.WriteBuffer(buf.buf, uint64(dst.Offset), tr.data[src.Offset:src.Offset+dst.Size]); err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"write buffer %d: %s", dst.Buffer, err.Error()).WithCause(err)
	}
	return nil
}

func (d *Device) UploadToTexture(pass gpu.ID, src gpu.TransferRegion, texture gpu.ID, width, height int) error {
	d.mu.Lock()
	p, pok := d.passes[pass]
	tr, tok := d.transfers[src.Buffer]
	tex, xok := d.textures[texture]
	d.mu.Unlock()
	if !pok || !p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "copy pass %d is not open", pass)
	}
	if !tok {
		return schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d not found", src.Buffer)
	}
	if !xok {
		return schema.NewErrorf(schema.ErrCodeExecution, "texture %d not found", texture)
	}
	bytesPerRow := width * 4
	size := bytesPerRow * height
	if src.Offset+size > len(tr.data) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"texture upload of %d bytes exceeds transfer buffer", size)
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex.tex, MipLevel: 0},
		tr.data[src.Offset:src.Offset+size],
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(bytesPerRow),
			RowsPerImage: uint32(height),
		},
		&hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"write texture %d: %s", texture, err.Error()).WithCause(err)
	}
	return nil
}

func (d *Device) EndCopyPass(pass gpu.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.passes[pass]
	if !ok || !p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "copy pass %d is not open", pass)
	}
	if rec, ok := d.cmds[p.cmd]; ok {
		rec.openPass = gpu.InvalidID
	}
	delete(d.passes, pass)
	return nil
}

func (d *Device) BeginRenderPass(cmd gpu.ID, desc gpu.RenderPassDescriptor) (gpu.ID, error) {
	d.mu.Lock()
	rec, ok := d.cmds[cmd]
	if !ok {
		d.mu.Unlock()
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	if rec.openPass != gpu.InvalidID {
		d.mu.Unlock()
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
			"command buffer %d already has an open pass", cmd)
	}

	colors := make([]hal.RenderPassColorAttachment, 0, len(desc.Colors))
	for _, c := range desc.Colors {
		tex, ok := d.textures[c.Texture]
		if !ok {
			d.mu.Unlock()
			return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
				"color attachment texture %d not found", c.Texture)
		}
		load := types.LoadOpClear
		if c.Load == gpu.LoadKeep {
			load = types.LoadOpLoad
		}
		store := types.StoreOpStore
		if c.Store == gpu.StoreDontCare {
			store = types.StoreOpDiscard
		}
		colors = append(colors, hal.RenderPassColorAttachment{
			View:    tex.view,
			LoadOp:  load,
			StoreOp: store,
			ClearValue: types.Color{
				R: float64(c.ClearColor[0]),
				G: float64(c.ClearColor[1]),
				B: float64(c.ClearColor[2]),
				A: float64(c.ClearColor[3]),
			},
		})
	}

	var depth *hal.RenderPassDepthStencilAttachment
	if desc.Depth != nil {
		tex, ok := d.textures[desc.Depth.Texture]
		if !ok {
			d.mu.Unlock()
			return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
				"depth attachment texture %d not found", desc.Depth.Texture)
		}
		load := types.LoadOpClear
		if desc.Depth.Load == gpu.LoadKeep {
			load = types.LoadOpLoad
		}
		store := types.StoreOpStore
		if desc.Depth.Store == gpu.StoreDontCare {
			store = types.StoreOpDiscard
		}
		depth = &hal.RenderPassDepthStencilAttachment{
			View:            tex.view,
			DepthLoadOp:     load,
			DepthStoreOp:    store,
			DepthClearValue: desc.Depth.ClearDepth,
			StencilLoadOp:   types.LoadOpClear,
			StencilStoreOp:  types.StoreOpDiscard,
		}
	}
	d.mu.Unlock()

	rp := rec.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  desc.Label,
		ColorAttachments:       colors,
		DepthStencilAttachment: depth,
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.passes[id] = &passRec{cmd: cmd, rp: rp}
	rec.openPass = id
	return id, nil
}

func (d *Device) BindPipeline(pass, pipeline gpu.ID) error {
	d.mu.Lock()
	p, pok := d.passes[pass]
	pipe, ok := d.pipelines[pipeline]
	d.mu.Unlock()
	if !pok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "pipeline %d not found", pipeline)
	}
	p.rp.SetPipeline(pipe.pipe)
	p.pipeline = pipe
	p.dirty = true
	return nil
}

func (d *Device) BindVertexBuffer(pass gpu.ID, slot int, buffer gpu.ID, offset int) error {
	d.mu.Lock()
	p, pok := d.passes[pass]
	buf, ok := d.buffers[buffer]
	d.mu.Unlock()
	if !pok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "vertex buffer %d not found", buffer)
	}
	p.rp.SetVertexBuffer(uint32(slot), buf.buf, uint64(offset))
	return nil
}

func (d *Device) BindIndexBuffer(pass, buffer gpu.ID) error {
	d.mu.Lock()
	p, pok := d.passes[pass]
	buf, ok := d.buffers[buffer]
	d.mu.Unlock()
	if !pok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "index buffer %d not found", buffer)
	}
	p.rp.SetIndexBuffer(buf.buf, types.IndexFormatUint16, 0)
	return nil
}

func (d *Device) BindFragmentSamplers(pass gpu.ID, bindings []gpu.TextureSamplerBinding) error {
	d.mu.Lock()
	p, pok := d.passes[pass]
	d.mu.Unlock()
	if !pok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	p.samplers = append([]gpu.TextureSamplerBinding(nil), bindings...)
	p.dirty = true
	return nil
}

func (d *Device) pushUniform(cmd gpu.ID, data []byte, vertex bool) error {
	d.mu.Lock()
	rec, ok := d.cmds[cmd]
	d.mu.Unlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	size := len(data)
	if size == 0 {
		return nil
	}
	// WebGPU-style APIs have no push constants; each push becomes a small
	// transient uniform buffer released after the frame's fence.
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "push-uniform",
		Size:  uint64(size),
		Usage: types.BufferUsageUniform | types.BufferUsageCopyDst,
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create uniform buffer: %s", err.Error()).WithCause(err)
	}
	if err := d.queue.WriteBuffer(buf, 0, data); err != nil {
		d.device.DestroyBuffer(buf)
		return schema.NewErrorf(schema.ErrCodeExecution,
			"write uniform buffer: %s", err.Error()).WithCause(err)
	}

	d.mu.Lock()
	rec.transient = append(rec.transient, buf)
	if vertex {
		rec.vertUniform = buf
	} else {
		rec.fragUniform = buf
	}
	if rec.openPass != gpu.InvalidID {
		if p, ok := d.passes[rec.openPass]; ok {
			p.dirty = true
		}
	}
	d.mu.Unlock()
	return nil
}

func (d *Device) PushVertexUniforms(cmd gpu.ID, slot int, data []byte) error {
	return d.pushUniform(cmd, data, true)
}

func (d *Device) PushFragmentUniforms(cmd gpu.ID, slot int, data []byte) error {
	return d.pushUniform(cmd, data, false)
}

// flushBindGroups materializes the uniform and sampler bind groups for the
// next draw. Bind groups are transient per draw because the pushed uniform
// buffers change between draws.
func (d *Device) flushBindGroups(p *passRec) error {
	if p.pipeline == nil {
		return schema.NewError(schema.ErrCodeExecution, "draw without a bound pipeline")
	}
	if !p.dirty {
		return nil
	}

	d.mu.Lock()
	rec := d.cmds[p.cmd]
	d.mu.Unlock()

	vert := rec.vertUniform
	if vert == nil {
		vert = d.dummyUniform
	}
	frag := rec.fragUniform
	if frag == nil {
		frag = d.dummyUniform
	}

	uniformBG, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "uniforms",
		Layout: p.pipeline.uniformLayout,
		Entries: []types.BindGroupEntry{
			{Binding: 0, Resource: types.BufferBinding{Buffer: vert.NativeHandle()}},
			{Binding: 1, Resource: types.BufferBinding{Buffer: frag.NativeHandle()}},
		},
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"create uniform bind group: %s", err.Error()).WithCause(err)
	}
	p.rp.SetBindGroup(0, uniformBG, nil)

	if p.pipeline.samplerCount > 0 {
		if len(p.samplers) < p.pipeline.samplerCount {
			return schema.NewErrorf(schema.ErrCodeExecution,
				"pipeline %q expects %d sampler bindings, got %d",
				p.pipeline.desc.Label, p.pipeline.samplerCount, len(p.samplers))
		}
		entries := make([]types.BindGroupEntry, 0, p.pipeline.samplerCount*2)
		d.mu.Lock()
		for i := 0; i < p.pipeline.samplerCount; i++ {
			b := p.samplers[i]
			tex, tok := d.textures[b.Texture]
			smp, sok := d.samplers[b.Sampler]
			if !tok || !sok {
				d.mu.Unlock()
				return schema.NewErrorf(schema.ErrCodeExecution,
					"sampler binding %d references missing resources", i)
			}
			entries = append(entries,
				types.BindGroupEntry{
					Binding:  uint32(i * 2),
					Resource: types.TextureViewBinding{TextureView: tex.view.NativeHandle()},
				},
				types.BindGroupEntry{
					Binding:  uint32(i*2 + 1),
					Resource: types.SamplerBinding{Sampler: smp.NativeHandle()},
				},
			)
		}
		d.mu.Unlock()
		samplerBG, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   "samplers",
			Layout:  p.pipeline.samplerLayout,
			Entries: entries,
		})
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeExecution,
				"create sampler bind group: %s", err.Error()).WithCause(err)
		}
		p.rp.SetBindGroup(1, samplerBG, nil)
	}

	p.dirty = false
	return nil
}

func (d *Device) Draw(pass gpu.ID, vertexCount, instanceCount int) error {
	d.mu.Lock()
	p, ok := d.passes[pass]
	d.mu.Unlock()
	if !ok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	if err := d.flushBindGroups(p); err != nil {
		return err
	}
	p.rp.Draw(uint32(vertexCount), uint32(instanceCount), 0, 0)
	return nil
}

func (d *Device) DrawIndexed(pass gpu.ID, indexCount, instanceCount int) error {
	d.mu.Lock()
	p, ok := d.passes[pass]
	d.mu.Unlock()
	if !ok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	if err := d.flushBindGroups(p); err != nil {
		return err
	}
	p.rp.DrawIndexed(uint32(indexCount), uint32(instanceCount), 0, 0, 0)
	return nil
}

func (d *Device) EndRenderPass(pass gpu.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.passes[pass]
	if !ok || p.copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	p.rp.End()
	if rec, ok := d.cmds[p.cmd]; ok {
		rec.openPass = gpu.InvalidID
	}
	delete(d.passes, pass)
	return nil
}

// ReadTexture copies the texture into a 256-byte-row-aligned staging buffer,
// waits for the submission to complete, then maps the staging buffer and
// repacks to tight RGBA8 rows.
func (d *Device) ReadTexture(texture gpu.ID, width, height int) ([]byte, error) {
	d.mu.Lock()
	tex, ok := d.textures[texture]
	d.mu.Unlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "texture %d not found", texture)
	}
	if width <= 0 || height <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "invalid readback extent %dx%d", width, height)
	}

	const rowAlign = 256
	bytesPerRow := (width*4 + rowAlign - 1) / rowAlign * rowAlign
	size := bytesPerRow * height

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback",
		Size:  uint64(size),
		Usage: types.BufferUsageMapRead | types.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"create readback buffer: %s", err.Error()).WithCause(err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "readback"})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"create readback encoder: %s", err.Error()).WithCause(err)
	}
	if err := encoder.BeginEncoding("readback"); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"begin readback encoding: %s", err.Error()).WithCause(err)
	}

	encoder.CopyTextureToBuffer(tex.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(bytesPerRow),
			RowsPerImage: uint32(height),
		},
		TextureBase: hal.ImageCopyTexture{Texture: tex.tex, MipLevel: 0},
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
	}})

	cb, err := encoder.EndEncoding()
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"end readback encoding: %s", err.Error()).WithCause(err)
	}
	defer d.device.FreeCommandBuffer(cb)

	index, err := d.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"submit readback: %s", err.Error()).WithCause(err)
	}
	if err := d.waitSubmission(index); err != nil {
		return nil, err
	}

	mapping, err := d.device.MapBuffer(staging, 0, uint64(size))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"map staging buffer: %s", err.Error()).WithCause(err)
	}
	raw := unsafe.Slice((*byte)(mapping.Ptr), size)
	out := make([]byte, width*height*4)
	for row := 0; row < height; row++ {
		src := row * bytesPerRow
		dst := row * width * 4
		copy(out[dst:dst+width*4], raw[src:src+width*4])
	}
	if err := d.device.UnmapBuffer(staging); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"unmap staging buffer: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range d.pipelines {
		d.device.DestroyRenderPipeline(rec.pipe)
		d.device.DestroyBindGroupLayout(rec.uniformLayout)
		if rec.samplerLayout != nil {
			d.device.DestroyBindGroupLayout(rec.samplerLayout)
		}
	}
	for _, rec := range d.shaders {
		d.device.DestroyShaderModule(rec.module)
	}
	for _, s := range d.samplers {
		d.device.DestroySampler(s)
	}
	for _, rec := range d.textures {
		d.device.DestroyTextureView(rec.view)
		d.device.DestroyTexture(rec.tex)
	}
	for _, rec := range d.buffers {
		d.device.DestroyBuffer(rec.buf)
	}
	if d.dummyUniform != nil {
		d.device.DestroyBuffer(d.dummyUniform)
	}
	d.pipelines = map[gpu.ID]*pipelineRec{}
	d.shaders = map[gpu.ID]*shaderRec{}
	d.samplers = map[gpu.ID]hal.Sampler{}
	d.textures = map[gpu.ID]*textureRec{}
	d.buffers = map[gpu.ID]*bufferRec{}
	return nil
}
