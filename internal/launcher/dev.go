package launcher

import (
	"context"
	"fmt"
)

// DevLauncher accepts every submission without running anything. Sentinels
// for its jobs are driven by hand through the internal API.
type DevLauncher struct{}

func (DevLauncher) Name() string { return "dev" }

func (DevLauncher) Submit(ctx context.Context, d Descriptor) (string, error) {
	return fmt.Sprintf("dev-%d", d.SimulationID), nil
}

func (DevLauncher) Status(ctx context.Context, handle string) (RemoteState, error) {
	return RemoteUnknown, nil
}
