//go:build !gcp

package export

import (
	"context"
	"fmt"
)

func newGCSDestinationFromEnv(ctx context.Context) (Destination, error) {
	return nil, fmt.Errorf("export: GCS destination is not enabled in this build (use -tags gcp)")
}
