// Package gpu defines the backend-neutral device interface the rendering
// steps are written against. Handles are opaque uint64 IDs so they can be
// stored in the workflow context without leaking backend types.
//
// Two implementations exist: gputest (in-memory reference device, the
// headless default) and native (gogpu/wgpu hal adapter).
package gpu

// Device is an immediate-mode GPU abstraction: resource creation, one command
// buffer per frame, copy passes for uploads, render passes for draws, and
// synchronous readback. Implementations are safe for use from a single
// workflow goroutine; resource creation may be called from anywhere.
type Device interface {
	// Backend returns the concrete backend the device runs on.
	Backend() Backend

	CreateBuffer(desc BufferDescriptor) (ID, error)
	ReleaseBuffer(id ID)

	// Transfer buffers are host-visible staging memory. Map returns writable
	// backing memory; Unmap flushes it for use in a copy pass.
	CreateTransferBuffer(size int) (ID, error)
	MapTransferBuffer(id ID) ([]byte, error)
	UnmapTransferBuffer(id ID) error
	ReleaseTransferBuffer(id ID)

	CreateTexture(desc TextureDescriptor) (ID, error)
	ReleaseTexture(id ID)

	CreateSampler(desc SamplerDescriptor) (ID, error)
	ReleaseSampler(id ID)

	CreateShader(desc ShaderDescriptor) (ID, error)
	ReleaseShader(id ID)

	CreateRenderPipeline(desc PipelineDescriptor) (ID, error)
	ReleasePipeline(id ID)

	// AcquireCommandBuffer starts recording a frame's commands.
	AcquireCommandBuffer() (ID, error)

	// AcquireSwapchainTexture returns the frame's presentation target. A
	// zero Texture with nil error means the swapchain is unavailable this
	// frame; callers skip the frame rather than fail.
	AcquireSwapchainTexture(cmd ID) (SwapchainTexture, error)

	// Submit finishes and submits a command buffer.
	Submit(cmd ID) error

	BeginCopyPass(cmd ID) (ID, error)
	UploadToBuffer(pass ID, src TransferRegion, dst BufferRegion) error
	UploadToTexture(pass ID, src TransferRegion, texture ID, width, height int) error
	EndCopyPass(pass ID) error

	BeginRenderPass(cmd ID, desc RenderPassDescriptor) (ID, error)
	BindPipeline(pass, pipeline ID) error
	BindVertexBuffer(pass ID, slot int, buffer ID, offset int) error
	// BindIndexBuffer binds a 16-bit index buffer.
	BindIndexBuffer(pass, buffer ID) error
	BindFragmentSamplers(pass ID, bindings []TextureSamplerBinding) error
	// PushVertexUniforms and PushFragmentUniforms set per-draw uniform data
	// on the command buffer; the bound pipeline reads it at the given slot.
	PushVertexUniforms(cmd ID, slot int, data []byte) error
	PushFragmentUniforms(cmd ID, slot int, data []byte) error
	Draw(pass ID, vertexCount, instanceCount int) error
	DrawIndexed(pass ID, indexCount, instanceCount int) error
	EndRenderPass(pass ID) error

	// ReadTexture synchronously reads a texture back as tightly packed
	// RGBA8 pixels.
	ReadTexture(texture ID, width, height int) ([]byte, error)

	Close() error
}
