package youtube

import (
	"context"

	"github.com/kkdai/youtube/v2"
)

// videoSource is the part of the kkdai client the backend relies on.
type videoSource interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}
