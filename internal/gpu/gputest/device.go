// Package gputest provides an in-memory reference implementation of
// gpu.Device. It keeps full resource tables, validates handle usage, records
// every draw call, and can simulate swapchain starvation. It is both the test
// double for the rendering steps and the default device for headless runs.
package gputest

import (
	"sync"

	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/pkg/schema"
)

// DrawCall is one recorded draw with the state bound at the time.
type DrawCall struct {
	Pipeline      gpu.ID
	VertexBuffer  gpu.ID
	IndexBuffer   gpu.ID
	VertexCount   int
	IndexCount    int
	InstanceCount int
	Samplers      []gpu.TextureSamplerBinding
	VertexUniform []byte
	FragUniform   []byte
	Target        gpu.ID
}

type bufferRec struct {
	desc gpu.BufferDescriptor
	data []byte
}

type transferRec struct {
	data   []byte
	mapped bool
}

type textureRec struct {
	desc       gpu.TextureDescriptor
	clearColor [4]float32
	cleared    bool
}

type passRec struct {
	cmd     gpu.ID
	copying bool
	open    bool

	// render pass state
	desc         gpu.RenderPassDescriptor
	pipeline     gpu.ID
	vertexBuffer gpu.ID
	indexBuffer  gpu.ID
	samplers     []gpu.TextureSamplerBinding
}

type cmdRec struct {
	open          bool
	openPass      gpu.ID
	vertexUniform []byte
	fragUniform   []byte
}

// Device is the in-memory gpu.Device.
type Device struct {
	mu sync.Mutex

	nextID    uint64
	backend   gpu.Backend
	buffers   map[gpu.ID]*bufferRec
	transfers map[gpu.ID]*transferRec
	textures  map[gpu.ID]*textureRec
	samplers  map[gpu.ID]gpu.SamplerDescriptor
	shaders   map[gpu.ID]gpu.ShaderDescriptor
	pipelines map[gpu.ID]gpu.PipelineDescriptor
	cmds      map[gpu.ID]*cmdRec
	passes    map[gpu.ID]*passRec

	swapchainAvailable bool
	swapWidth          int
	swapHeight         int
	swapTexture        gpu.ID

	draws     []DrawCall
	submitted int
	closed    bool
}

var _ gpu.Device = (*Device)(nil)

// New creates a Device presenting an 800x600 emulated swapchain.
func New() *Device {
	return NewWithSize(800, 600)
}

// NewWithSize creates a Device with the given swapchain dimensions.
func NewWithSize(width, height int) *Device {
	return &Device{
		backend:            gpu.BackendVulkan,
		buffers:            make(map[gpu.ID]*bufferRec),
		transfers:          make(map[gpu.ID]*transferRec),
		textures:           make(map[gpu.ID]*textureRec),
		samplers:           make(map[gpu.ID]gpu.SamplerDescriptor),
		shaders:            make(map[gpu.ID]gpu.ShaderDescriptor),
		pipelines:          make(map[gpu.ID]gpu.PipelineDescriptor),
		cmds:               make(map[gpu.ID]*cmdRec),
		passes:             make(map[gpu.ID]*passRec),
		swapchainAvailable: true,
		swapWidth:          width,
		swapHeight:         height,
	}
}

// SetSwapchainAvailable toggles swapchain image availability, simulating an
// occluded or resizing window.
func (d *Device) SetSwapchainAvailable(ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.swapchainAvailable = ok
}

// Resize changes the emulated swapchain dimensions.
func (d *Device) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.swapWidth = width
	d.swapHeight = height
}

// Draws returns a copy of the recorded draw log.
func (d *Device) Draws() []DrawCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DrawCall, len(d.draws))
	copy(out, d.draws)
	return out
}

// Submitted returns how many command buffers have been submitted.
func (d *Device) Submitted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submitted
}

// BufferData returns a copy of a device buffer's contents, for asserting on
// uploaded payloads.
func (d *Device) BufferData(id gpu.ID) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.buffers[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(rec.data))
	copy(out, rec.data)
	return out, true
}

// ResourceCount returns how many live buffer/texture/sampler/shader/pipeline
// objects the device holds. Transfer buffers count as well; a nonzero delta
// across a workflow run indicates a leak.
func (d *Device) ResourceCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers) + len(d.transfers) + len(d.textures) +
		len(d.samplers) + len(d.shaders) + len(d.pipelines)
}

func (d *Device) id() gpu.ID {
	d.nextID++
	return gpu.ID(d.nextID)
}

func (d *Device) Backend() gpu.Backend { return d.backend }

// SetBackend overrides the reported backend name.
func (d *Device) SetBackend(b gpu.Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backend = b
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpu.InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "device is closed")
	}
	if desc.Size <= 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"buffer %q has non-positive size %d", desc.Label, desc.Size)
	}
	id := d.id()
	d.buffers[id] = &bufferRec{desc: desc, data: make([]byte, desc.Size)}
	return id, nil
}

func (d *Device) ReleaseBuffer(id gpu.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

func (d *Device) CreateTransferBuffer(size int) (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if size <= 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"transfer buffer has non-positive size %d", size)
	}
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
	if !rec.mapped {
		return schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d is not mapped", id)
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
	d.mu.Lock()
	defer d.mu.Unlock()
	if desc.Width <= 0 || desc.Height <= 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"texture %q has invalid extent %dx%d", desc.Label, desc.Width, desc.Height)
	}
	id := d.id()
	d.textures[id] = &textureRec{desc: desc}
	return id, nil
}

func (d *Device) ReleaseTexture(id gpu.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// TextureDesc returns the descriptor of a live texture.
func (d *Device) TextureDesc(id gpu.ID) (gpu.TextureDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.textures[id]
	if !ok {
		return gpu.TextureDescriptor{}, false
	}
	return rec.desc, true
}

func (d *Device) CreateSampler(desc gpu.SamplerDescriptor) (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.id()
	d.samplers[id] = desc
	return id, nil
}

func (d *Device) ReleaseSampler(id gpu.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, id)
}

func (d *Device) CreateShader(desc gpu.ShaderDescriptor) (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(desc.Code) == 0 {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"shader %q has empty code", desc.Label)
	}
	id := d.id()
	d.shaders[id] = desc
	return id, nil
}

func (d *Device) ReleaseShader(id gpu.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shaders, id)
}

func (d *Device) CreateRenderPipeline(desc gpu.PipelineDescriptor) (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.shaders[desc.VertexShader]; !ok {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"pipeline %q references unknown vertex shader %d", desc.Label, desc.VertexShader)
	}
	if _, ok := d.shaders[desc.FragmentShader]; !ok {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"pipeline %q references unknown fragment shader %d", desc.Label, desc.FragmentShader)
	}
	if len(desc.ColorTargets) == 0 && !desc.DepthFormat.IsDepth() {
		return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeResourceCreation,
			"pipeline %q has no targets", desc.Label)
	}
	id := d.id()
	d.pipelines[id] = desc
	return id, nil
}

func (d *Device) ReleasePipeline(id gpu.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

func (d *Device) AcquireCommandBuffer() (gpu.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return gpu.InvalidID, schema.NewError(schema.ErrCodeExecution, "device is closed")
	}
	id := d.id()
	d.cmds[id] = &cmdRec{open: true}
	return id, nil
}

func (d *Device) AcquireSwapchainTexture(cmd gpu.ID) (gpu.SwapchainTexture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cmds[cmd]; !ok {
		return gpu.SwapchainTexture{}, schema.NewErrorf(schema.ErrCodeExecution,
			"command buffer %d not found", cmd)
	}
	if !d.swapchainAvailable {
		return gpu.SwapchainTexture{}, nil
	}
	if d.swapTexture == gpu.InvalidID || d.textures[d.swapTexture] == nil ||
		d.textures[d.swapTexture].desc.Width != d.swapWidth ||
		d.textures[d.swapTexture].desc.Height != d.swapHeight {
		id := d.id()
		d.textures[id] = &textureRec{desc: gpu.TextureDescriptor{
			Label:  "swapchain",
			Width:  d.swapWidth,
			Height: d.swapHeight,
			Format: gpu.TextureBGRA8Unorm,
			Usage:  gpu.TextureUsageColorTarget | gpu.TextureUsageCopySrc,
		}}
		d.swapTexture = id
	}
	return gpu.SwapchainTexture{
		Texture: d.swapTexture,
		Width:   d.swapWidth,
		Height:  d.swapHeight,
	}, nil
}

func (d *Device) Submit(cmd gpu.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.cmds[cmd]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	if rec.openPass != gpu.InvalidID {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"command buffer %d submitted with pass %d still open", cmd, rec.openPass)
	}
	delete(d.cmds, cmd)
	d.submitted++
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
	d.passes[id] = &passRec{cmd: cmd, copying: true, open: true}
	rec.openPass = id
	return id, nil
}

func (d *Device) UploadToBuffer(pass gpu.ID, src gpu.TransferRegion, dst gpu.BufferRegion) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.passes[pass]
	if !ok || !p.copying || !p.open {
		return schema.NewErrorf(schema.ErrCodeExecution, "copy pass %d is not open", pass)
	}
	tr, ok := d.transfers[src.Buffer]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d not found", src.Buffer)
	}
	buf, ok := d.buffers[dst.Buffer]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "buffer %d not found", dst.Buffer)
	}
	if src.Offset+dst.Size > len(tr.data) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"transfer read past end: offset %d size %d len %d", src.Offset, dst.Size, len(tr.data))
	}
	if dst.Offset+dst.Size > len(buf.data) {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"buffer write past end: offset %d size %d len %d", dst.Offset, dst.Size, len(buf.data))
	}
	copy(buf.data[dst.Offset:dst.Offset+dst.Size], tr.data[src.Offset:src.Offset+dst.Size])
	return nil
}

func (d *Device) UploadToTexture(pass gpu.ID, src gpu.TransferRegion, texture gpu.ID, width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.passes[pass]
	if !ok || !p.copying || !p.open {
		return schema.NewErrorf(schema.ErrCodeExecution, "copy pass %d is not open", pass)
	}
	if _, ok := d.transfers[src.Buffer]; !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "transfer buffer %d not found", src.Buffer)
	}
	tex, ok := d.textures[texture]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "texture %d not found", texture)
	}
	if width != tex.desc.Width || height != tex.desc.Height {
		return schema.NewErrorf(schema.ErrCodeExecution,
			"upload extent %dx%d does not match texture %dx%d",
			width, height, tex.desc.Width, tex.desc.Height)
	}
	return nil
}

func (d *Device) EndCopyPass(pass gpu.ID) error {
	return d.endPass(pass, true)
}

func (d *Device) BeginRenderPass(cmd gpu.ID, desc gpu.RenderPassDescriptor) (gpu.ID, error) {
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
	if len(desc.Colors) == 0 && desc.Depth == nil {
		return gpu.InvalidID, schema.NewError(schema.ErrCodeExecution, "render pass has no attachments")
	}
	for _, c := range desc.Colors {
		tex, ok := d.textures[c.Texture]
		if !ok {
			return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
				"color attachment texture %d not found", c.Texture)
		}
		if c.Load == gpu.LoadClear {
			tex.clearColor = c.ClearColor
			tex.cleared = true
		}
	}
	if desc.Depth != nil {
		if _, ok := d.textures[desc.Depth.Texture]; !ok {
			return gpu.InvalidID, schema.NewErrorf(schema.ErrCodeExecution,
				"depth attachment texture %d not found", desc.Depth.Texture)
		}
	}
	id := d.id()
	d.passes[id] = &passRec{cmd: cmd, open: true, desc: desc}
	rec.openPass = id
	return id, nil
}

func (d *Device) BindPipeline(pass, pipeline gpu.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.renderPass(pass)
	if err != nil {
		return err
	}
	if _, ok := d.pipelines[pipeline]; !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "pipeline %d not found", pipeline)
	}
	p.pipeline = pipeline
	return nil
}

func (d *Device) BindVertexBuffer(pass gpu.ID, slot int, buffer gpu.ID, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.renderPass(pass)
	if err != nil {
		return err
	}
	if _, ok := d.buffers[buffer]; !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "vertex buffer %d not found", buffer)
	}
	p.vertexBuffer = buffer
	return nil
}

func (d *Device) BindIndexBuffer(pass, buffer gpu.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.renderPass(pass)
	if err != nil {
		return err
	}
	if _, ok := d.buffers[buffer]; !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "index buffer %d not found", buffer)
	}
	p.indexBuffer = buffer
	return nil
}

func (d *Device) BindFragmentSamplers(pass gpu.ID, bindings []gpu.TextureSamplerBinding) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.renderPass(pass)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if _, ok := d.textures[b.Texture]; !ok {
			return schema.NewErrorf(schema.ErrCodeExecution, "sampled texture %d not found", b.Texture)
		}
		if _, ok := d.samplers[b.Sampler]; !ok {
			return schema.NewErrorf(schema.ErrCodeExecution, "sampler %d not found", b.Sampler)
		}
	}
	p.samplers = append([]gpu.TextureSamplerBinding(nil), bindings...)
	return nil
}

func (d *Device) PushVertexUniforms(cmd gpu.ID, slot int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.cmds[cmd]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	rec.vertexUniform = append([]byte(nil), data...)
	return nil
}

func (d *Device) PushFragmentUniforms(cmd gpu.ID, slot int, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.cmds[cmd]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "command buffer %d not found", cmd)
	}
	rec.fragUniform = append([]byte(nil), data...)
	return nil
}

func (d *Device) Draw(pass gpu.ID, vertexCount, instanceCount int) error {
	return d.recordDraw(pass, vertexCount, 0, instanceCount)
}

func (d *Device) DrawIndexed(pass gpu.ID, indexCount, instanceCount int) error {
	return d.recordDraw(pass, 0, indexCount, instanceCount)
}

func (d *Device) recordDraw(pass gpu.ID, vertexCount, indexCount, instanceCount int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.renderPass(pass)
	if err != nil {
		return err
	}
	if p.pipeline == gpu.InvalidID {
		return schema.NewErrorf(schema.ErrCodeExecution, "draw on pass %d without a bound pipeline", pass)
	}
	if indexCount > 0 && p.indexBuffer == gpu.InvalidID {
		return schema.NewErrorf(schema.ErrCodeExecution, "indexed draw on pass %d without an index buffer", pass)
	}
	cmd := d.cmds[p.cmd]
	var target gpu.ID
	if len(p.desc.Colors) > 0 {
		target = p.desc.Colors[0].Texture
	} else if p.desc.Depth != nil {
		target = p.desc.Depth.Texture
	}
	d.draws = append(d.draws, DrawCall{
		Pipeline:      p.pipeline,
		VertexBuffer:  p.vertexBuffer,
		IndexBuffer:   p.indexBuffer,
		VertexCount:   vertexCount,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		Samplers:      append([]gpu.TextureSamplerBinding(nil), p.samplers...),
		VertexUniform: append([]byte(nil), cmd.vertexUniform...),
		FragUniform:   append([]byte(nil), cmd.fragUniform...),
		Target:        target,
	})
	return nil
}

func (d *Device) EndRenderPass(pass gpu.ID) error {
	return d.endPass(pass, false)
}

func (d *Device) endPass(pass gpu.ID, copying bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.passes[pass]
	if !ok || !p.open || p.copying != copying {
		return schema.NewErrorf(schema.ErrCodeExecution, "pass %d is not open", pass)
	}
	p.open = false
	if rec, ok := d.cmds[p.cmd]; ok {
		rec.openPass = gpu.InvalidID
	}
	delete(d.passes, pass)
	return nil
}

func (d *Device) renderPass(pass gpu.ID) (*passRec, error) {
	p, ok := d.passes[pass]
	if !ok || !p.open || p.copying {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "render pass %d is not open", pass)
	}
	return p, nil
}

// ReadTexture returns the texture's last clear color replicated across every
// pixel, which is enough for screenshot plumbing tests.
func (d *Device) ReadTexture(texture gpu.ID, width, height int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tex, ok := d.textures[texture]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "texture %d not found", texture)
	}
	if width <= 0 || height <= 0 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "invalid readback extent %dx%d", width, height)
	}
	px := [4]byte{0, 0, 0, 255}
	if tex.cleared {
		for i := 0; i < 4; i++ {
			v := tex.clearColor[i]
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			px[i] = byte(v*255 + 0.5)
		}
	}
	out := make([]byte, width*height*4)
	for i := 0; i < len(out); i += 4 {
		out[i] = px[0]
		out[i+1] = px[1]
		out[i+2] = px[2]
		out[i+3] = px[3]
	}
	return out, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
