package client

import (
	"context"

	"github.com/menta2k/browcrop/pkg/types"
)

type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateLandmarks(ctx context.Context, model, prompt, imgB64 string) (*types.LandmarkReply, error)
}
