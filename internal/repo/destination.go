package repo

import (
	"context"
	"strings"

	"github.com/bchodorowski/bucse/internal/store"
	"github.com/bchodorowski/bucse/internal/store/local"
	"github.com/bchodorowski/bucse/internal/store/s3"
	"github.com/bchodorowski/bucse/internal/store/sftp"
	bucseerrors "github.com/bchodorowski/bucse/pkg/errors"
)

// OpenDestination resolves a repository URL to a concrete, initialized
// store.Destination by scheme (spec §6.5): "file://<path>",
// "ssh://<host>[:<port>]/<path>", "s3://bucket/prefix", or a bare path
// (treated as local). Living in internal/repo (rather than internal/store)
// lets it import all three backend packages without an import cycle.
func OpenDestination(ctx context.Context, rawURL string) (store.Destination, error) {
	var dest store.Destination
	switch {
	case strings.HasPrefix(rawURL, "ssh://"):
		dest = sftp.New()
	case strings.HasPrefix(rawURL, "s3://"):
		dest = s3.New()
	case strings.HasPrefix(rawURL, "file://"), !strings.Contains(rawURL, "://"):
		dest = local.New()
	default:
		return nil, bucseerrors.New(bucseerrors.ErrCodeUnknownDestination, "unrecognized repository URL scheme: "+rawURL).
			WithComponent("repo")
	}
	if err := dest.Init(ctx, rawURL); err != nil {
		return nil, err
	}
	return dest, nil
}
