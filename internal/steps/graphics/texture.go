package graphics

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	"github.com/mitchellh/go-homedir"
	xdraw "golang.org/x/image/draw"

	"github.com/renderflow/engine/internal/engine"
	"github.com/renderflow/engine/internal/gpu"
	"github.com/renderflow/engine/internal/steps/keys"
	"github.com/renderflow/engine/internal/wfctx"
	"github.com/renderflow/engine/pkg/schema"
)

// TextureLoad decodes an image file, converts it to RGBA8 and uploads it
// into a sampled device texture.
type TextureLoad struct {
	logger *slog.Logger
}

func (s *TextureLoad) PluginID() string { return "graphics.texture.load" }

func (s *TextureLoad) Execute(ctx context.Context, def *schema.StepDefinition, wc *wfctx.Context) error {
	pathKey, err := engine.InputKey(def, "image_path")
	if err != nil {
		return err
	}
	outKey, err := engine.OutputKey(def, "texture")
	if err != nil {
		return err
	}

	path := wc.GetString(pathKey, "")
	if path == "" {
		return schema.NewErrorf(schema.ErrCodeMissingContextValue, "context key %q not set", pathKey)
	}
	resolved, err := homedir.Expand(path)
	if err != nil {
		resolved = path
	}

	f, err := os.Open(resolved)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeIO, "open image %s", resolved).WithCause(err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeIO, "decode image %s", resolved).WithCause(err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(rgba, rgba.Bounds(), src, bounds.Min, xdraw.Src)

	dev, err := wfctx.Get[gpu.Device](wc, keys.Device)
	if err != nil {
		return err
	}

	texture, err := dev.CreateTexture(gpu.TextureDescriptor{
		Label:  outKey,
		Width:  width,
		Height: height,
		Format: gpu.TextureRGBA8Unorm,
		Usage:  gpu.TextureUsageSampled | gpu.TextureUsageCopyDst,
	})
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeResourceCreation, "create texture %dx%d", width, height).WithCause(err)
	}

	if err := uploadPixels(dev, texture, rgba.Pix, width, height); err != nil {
		dev.ReleaseTexture(texture)
		return err
	}

	wc.Set(outKey, texture)
	wc.Set(outKey+"_info", map[string]any{"width": width, "height": height})

	s.logger.InfoContext(ctx, "texture loaded",
		"path", resolved, "width", width, "height", height)
	return nil
}

func uploadPixels(dev gpu.Device, texture gpu.ID, pixels []byte, width, height int) error {
	transfer, err := dev.CreateTransferBuffer(len(pixels))
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "create transfer buffer").WithCause(err)
	}
	defer dev.ReleaseTransferBuffer(transfer)

	mapped, err := dev.MapTransferBuffer(transfer)
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "map transfer buffer").WithCause(err)
	}
	copy(mapped, pixels)
	if err := dev.UnmapTransferBuffer(transfer); err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "unmap transfer buffer").WithCause(err)
	}

	cmd, err := dev.AcquireCommandBuffer()
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "acquire command buffer").WithCause(err)
	}
	pass, err := dev.BeginCopyPass(cmd)
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "begin copy pass").WithCause(err)
	}
	if err := dev.UploadToTexture(pass, gpu.TransferRegion{Buffer: transfer}, texture, width, height); err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "upload texture data").WithCause(err)
	}
	if err := dev.EndCopyPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "end copy pass").WithCause(err)
	}
	if err := dev.Submit(cmd); err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "submit texture upload").WithCause(err)
	}
	return nil
}

// Steps returns the GPU lifecycle steps wired to the given device factory.
func Steps(logger *slog.Logger, factory DeviceFactory) []engine.Step {
	return []engine.Step{
		&ViewportInit{logger: logger},
		&RendererInit{logger: logger},
		&GPUInit{logger: logger, factory: factory},
		&ShaderCompile{logger: logger},
		&PipelineCreate{logger: logger},
		&CreateVertexBuffer{logger: logger},
		&CreateIndexBuffer{logger: logger},
		&BufferUpload{logger: logger},
		&TextureLoad{logger: logger},
		&FrameBegin{logger: logger},
		&FrameEnd{logger: logger},
		&DrawSubmit{logger: logger},
		&ScreenshotRequest{logger: logger},
		&FramebufferReadback{logger: logger},
	}
}
