package native

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/renderflow/engine/internal/gpu"
)

func openTestDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open(gpu.BackendAuto, 64, 64)
	if err != nil {
		t.Skipf("no gpu available: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpenRejectsUnavailableBackend(t *testing.T) {
	_, err := Open(gpu.BackendMetal, 64, 64)
	require.Error(t, err)
}

// Clears the swapchain to a known color, submits, and reads the pixels back
// through the staging-buffer mapping path.
func TestSubmitAndReadTexture(t *testing.T) {
	d := openTestDevice(t)

	cmd, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	swap, err := d.AcquireSwapchainTexture(cmd)
	require.NoError(t, err)

	pass, err := d.BeginRenderPass(cmd, gpu.RenderPassDescriptor{
		Label: "clear",
		Colors: []gpu.ColorAttachment{{
			Texture:    swap.Texture,
			Load:       gpu.LoadClear,
			Store:      gpu.StoreKeep,
			ClearColor: [4]float32{1, 0, 0, 1},
		}},
	})
	require.NoError(t, err)
	require.NoError(t, d.EndRenderPass(pass))
	require.NoError(t, d.Submit(cmd))

	pixels, err := d.ReadTexture(swap.Texture, swap.Width, swap.Height)
	require.NoError(t, err)
	require.Len(t, pixels, swap.Width*swap.Height*4)

	// BGRA8: red clear lands in the third channel.
	require.EqualValues(t, 0, pixels[0])
	require.EqualValues(t, 0, pixels[1])
	require.EqualValues(t, 255, pixels[2])
	require.EqualValues(t, 255, pixels[3])
}

func TestSubmitRejectsOpenPass(t *testing.T) {
	d := openTestDevice(t)

	cmd, err := d.AcquireCommandBuffer()
	require.NoError(t, err)
	_, err = d.BeginCopyPass(cmd)
	require.NoError(t, err)
	require.Error(t, d.Submit(cmd))
}
