package data

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sudharshan/ppe-monitor/internal/pipeline"
)

// PipelineCameraStore adapts CameraModel to pipeline.CameraStore, so the
// lifecycle manager reads camera descriptors through the same repository
// every other tenant-scoped handler uses.
type PipelineCameraStore struct {
	Model CameraModel
}

func (s PipelineCameraStore) Get(ctx context.Context, cameraID string) (pipeline.Camera, error) {
	id, err := uuid.Parse(cameraID)
	if err != nil {
		return pipeline.Camera{}, fmt.Errorf("data: invalid camera id %q: %w", cameraID, err)
	}
	c, err := s.Model.GetByID(ctx, id)
	if err != nil {
		return pipeline.Camera{}, err
	}
	return pipeline.Camera{
		ID:       c.ID.String(),
		Resource: c.StreamSource,
		Name:     c.Name,
	}, nil
}
