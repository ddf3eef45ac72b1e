package launcher

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
)

// DockerLauncher runs each batch file in a fresh container with the job
// directory bind-mounted at the same path.
type DockerLauncher struct {
	client *client.Client
	image  string
}

// NewDockerLauncher creates a launcher from the standard Docker environment
// variables (DOCKER_HOST and friends).
func NewDockerLauncher(img string) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerLauncher{client: cli, image: img}, nil
}

func (d *DockerLauncher) Name() string { return "docker" }

// Submit creates and starts the container. The handle is the container id.
func (d *DockerLauncher) Submit(ctx context.Context, desc Descriptor) (string, error) {
	if _, err := d.client.ImageInspect(ctx, d.image); err != nil {
		reader, err := d.client.ImagePull(ctx, d.image, image.PullOptions{})
		if err != nil {
			return "", &SubmissionError{Launcher: d.Name(), Err: fmt.Errorf("pull image %s: %w", d.image, err)}
		}
		err = jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil)
		reader.Close()
		if err != nil {
			return "", &SubmissionError{Launcher: d.Name(), Err: fmt.Errorf("pull image %s: %w", d.image, err)}
		}
	}

	cfg := &container.Config{
		Image:      d.image,
		Cmd:        containerCommand(desc),
		Env:        envList(desc.Env),
		WorkingDir: desc.WorkDir,
		Labels: map[string]string{
			"app.kubernetes.io/managed-by": "simplane",
			"simplane.simulation-id":       fmt.Sprint(desc.SimulationID),
		},
	}
	host := &container.HostConfig{
		Binds: []string{desc.WorkDir + ":" + desc.WorkDir},
	}

	name := fmt.Sprintf("simplane-%d", desc.SimulationID)
	resp, err := d.client.ContainerCreate(ctx, cfg, host, nil, nil, name)
	if err != nil {
		return "", &SubmissionError{Launcher: d.Name(), Err: fmt.Errorf("create container: %w", err)}
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", &SubmissionError{Launcher: d.Name(), Err: fmt.Errorf("start container: %w", err)}
	}
	return resp.ID, nil
}

// Status inspects the container.
func (d *DockerLauncher) Status(ctx context.Context, handle string) (RemoteState, error) {
	info, err := d.client.ContainerInspect(ctx, handle)
	if err != nil {
		if client.IsErrNotFound(err) {
			return RemoteUnknown, nil
		}
		return RemoteUnknown, fmt.Errorf("inspect container %s: %w", handle, err)
	}
	if info.State == nil {
		return RemoteUnknown, nil
	}
	return dockerState(string(info.State.Status), info.State.ExitCode), nil
}

func containerCommand(desc Descriptor) []string {
	return []string{"/bin/sh", "-c", fmt.Sprintf("/bin/bash '%s' > '%s' 2>&1", desc.ScriptPath, desc.OutputPath)}
}

func dockerState(status string, exitCode int) RemoteState {
	switch status {
	case "created":
		return RemotePending
	case "running", "restarting", "paused":
		return RemoteRunning
	case "exited", "dead":
		if exitCode == 0 {
			return RemoteCompleted
		}
		return RemoteFailed
	default:
		return RemoteUnknown
	}
}
