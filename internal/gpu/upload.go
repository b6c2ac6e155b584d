package gpu

import "github.com/renderflow/engine/pkg/schema"

// UploadBuffer creates a single buffer of the given kind and fills it
// through a transfer buffer and one copy pass.
func UploadBuffer(dev Device, label string, kind BufferKind, data []byte) (ID, error) {
	if len(data) == 0 {
		return InvalidID, schema.NewError(schema.ErrCodeValidation, "buffer payload is empty")
	}

	buf, err := dev.CreateBuffer(BufferDescriptor{Label: label, Kind: kind, Size: len(data)})
	if err != nil {
		return InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "create buffer").WithCause(err)
	}

	transfer, err := dev.CreateTransferBuffer(len(data))
	if err != nil {
		dev.ReleaseBuffer(buf)
		return InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "create transfer buffer").WithCause(err)
	}
	defer dev.ReleaseTransferBuffer(transfer)

	mapped, err := dev.MapTransferBuffer(transfer)
	if err != nil {
		dev.ReleaseBuffer(buf)
		return InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "map transfer buffer").WithCause(err)
	}
	copy(mapped, data)
	if err := dev.UnmapTransferBuffer(transfer); err != nil {
		dev.ReleaseBuffer(buf)
		return InvalidID, schema.NewError(schema.ErrCodeResourceCreation, "unmap transfer buffer").WithCause(err)
	}

	if err := copyMesh(dev, transfer, buf, InvalidID, len(data), 0); err != nil {
		dev.ReleaseBuffer(buf)
		return InvalidID, err
	}
	return buf, nil
}

// MeshBuffers is the pair of device buffers produced by a mesh upload.
type MeshBuffers struct {
	Vertex ID
	Index  ID
}

// UploadMesh creates a vertex buffer and, when indexData is non-empty, an
// index buffer, then pushes both payloads through a single transfer buffer
// and one copy pass. On any failure every object created so far is released
// before the error is returned.
func UploadMesh(dev Device, label string, vertexData, indexData []byte) (MeshBuffers, error) {
	var out MeshBuffers
	if len(vertexData) == 0 {
		return out, schema.NewError(schema.ErrCodeValidation, "vertex payload is empty")
	}

	vb, err := dev.CreateBuffer(BufferDescriptor{
		Label: label + " vertices",
		Kind:  BufferVertex,
		Size:  len(vertexData),
	})
	if err != nil {
		return out, schema.NewError(schema.ErrCodeResourceCreation, "create vertex buffer").WithCause(err)
	}

	var ib ID
	if len(indexData) > 0 {
		ib, err = dev.CreateBuffer(BufferDescriptor{
			Label: label + " indices",
			Kind:  BufferIndex,
			Size:  len(indexData),
		})
		if err != nil {
			dev.ReleaseBuffer(vb)
			return out, schema.NewError(schema.ErrCodeResourceCreation, "create index buffer").WithCause(err)
		}
	}

	release := func() {
		dev.ReleaseBuffer(vb)
		if ib != InvalidID {
			dev.ReleaseBuffer(ib)
		}
	}

	transfer, err := dev.CreateTransferBuffer(len(vertexData) + len(indexData))
	if err != nil {
		release()
		return out, schema.NewError(schema.ErrCodeResourceCreation, "create transfer buffer").WithCause(err)
	}
	defer dev.ReleaseTransferBuffer(transfer)

	mapped, err := dev.MapTransferBuffer(transfer)
	if err != nil {
		release()
		return out, schema.NewError(schema.ErrCodeResourceCreation, "map transfer buffer").WithCause(err)
	}
	copy(mapped, vertexData)
	copy(mapped[len(vertexData):], indexData)
	if err := dev.UnmapTransferBuffer(transfer); err != nil {
		release()
		return out, schema.NewError(schema.ErrCodeResourceCreation, "unmap transfer buffer").WithCause(err)
	}

	if err := copyMesh(dev, transfer, vb, ib, len(vertexData), len(indexData)); err != nil {
		release()
		return out, err
	}

	out.Vertex = vb
	out.Index = ib
	return out, nil
}

func copyMesh(dev Device, transfer, vb, ib ID, vertexSize, indexSize int) error {
	cmd, err := dev.AcquireCommandBuffer()
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "acquire command buffer").WithCause(err)
	}
	pass, err := dev.BeginCopyPass(cmd)
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "begin copy pass").WithCause(err)
	}

	err = dev.UploadToBuffer(pass,
		TransferRegion{Buffer: transfer, Offset: 0},
		BufferRegion{Buffer: vb, Offset: 0, Size: vertexSize})
	if err == nil && ib != InvalidID {
		err = dev.UploadToBuffer(pass,
			TransferRegion{Buffer: transfer, Offset: vertexSize},
			BufferRegion{Buffer: ib, Offset: 0, Size: indexSize})
	}
	if err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "upload mesh data").WithCause(err)
	}

	if err := dev.EndCopyPass(pass); err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "end copy pass").WithCause(err)
	}
	if err := dev.Submit(cmd); err != nil {
		return schema.NewError(schema.ErrCodeResourceCreation, "submit upload").WithCause(err)
	}
	return nil
}
