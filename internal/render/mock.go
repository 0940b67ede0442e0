package render

import (
	"context"

	"github.com/google/uuid"
)

// MockVideoURL is the creation url every mock task resolves to.
const MockVideoURL = "https://video.example.com/mock/creation-01/video.mp4"

// MockClient answers like the render service without network access: every
// task is created and immediately reports success.
type MockClient struct{}

// Submit returns a fresh task id in the created state.
func (MockClient) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &SubmitResponse{TaskID: uuid.NewString(), State: StateCreated}, nil
}

// Status reports success with a single canned creation.
func (MockClient) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &TaskStatus{
		State: StateSuccess,
		Creations: []Creation{{
			ID:       taskID + "-01",
			URL:      MockVideoURL,
			CoverURL: "https://video.example.com/mock/creation-01/cover.jpeg",
		}},
	}, nil
}
