package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

const browserlessPort = nat.Port("3000/tcp")

// DockerLauncher runs Chrome in a browserless container and attaches to it over CDP
type DockerLauncher struct {
	client  *client.Client
	runtime *Runtime
	opts    Options
	logger  *zap.Logger

	readyRetries  int
	readyInterval time.Duration
}

// NewDockerLauncher creates a launcher using the docker daemon from the environment
func NewDockerLauncher(runtime *Runtime, opts Options, logger *zap.Logger) (*DockerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerLauncher{
		client:        cli,
		runtime:       runtime,
		opts:          opts,
		logger:        logger,
		readyRetries:  20,
		readyInterval: 500 * time.Millisecond,
	}, nil
}

// Launch starts a container, waits for Chrome and opens a configured page in it
func (d *DockerLauncher) Launch(ctx context.Context) (*Instance, error) {
	name := fmt.Sprintf("gemini-bridge-%s", uuid.NewString()[:8])

	containerConfig := &container.Config{
		Image: d.opts.DockerImage,
		Labels: map[string]string{
			"managed-by": "gemini-bridge",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
			"DEFAULT_LAUNCH_ARGS=" + argsJSON(d.opts.Args),
		},
		ExposedPorts: nat.PortSet{
			browserlessPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			browserlessPort: []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	release := func(ctx context.Context) error {
		return d.stopContainer(ctx, resp.ID)
	}

	instance, err := d.attach(ctx, resp.ID)
	if err != nil {
		if stopErr := release(context.WithoutCancel(ctx)); stopErr != nil {
			d.logger.Warn("Failed to remove browser container after launch error",
				zap.String("container", resp.ID[:12]), zap.Error(stopErr))
		}
		return nil, err
	}

	instance.release = release
	d.logger.Info("Browser container ready",
		zap.String("container", resp.ID[:12]),
		zap.String("name", name),
		zap.String("cdp", instance.debugURL))
	return instance, nil
}

func (d *DockerLauncher) attach(ctx context.Context, containerID string) (*Instance, error) {
	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := d.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports[browserlessPort]
	if len(bindings) == 0 {
		return nil, fmt.Errorf("container exposes no binding for %s", browserlessPort)
	}
	port := bindings[0].HostPort

	if err := d.waitForBrowserReady(ctx, fmt.Sprintf("http://127.0.0.1:%s", port)); err != nil {
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	chromium, err := d.runtime.Chromium()
	if err != nil {
		return nil, err
	}

	wsURL := fmt.Sprintf("ws://127.0.0.1:%s", port)
	connectOpts := playwright.BrowserTypeConnectOverCDPOptions{}
	if d.opts.SlowMo > 0 {
		connectOpts.SlowMo = playwright.Float(float64(d.opts.SlowMo.Milliseconds()))
	}

	b, err := chromium.ConnectOverCDP(wsURL, connectOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP: %w", err)
	}

	instance, err := openPage(b, d.opts)
	if err != nil {
		return nil, err
	}
	instance.debugURL = wsURL
	return instance, nil
}

func (d *DockerLauncher) stopContainer(ctx context.Context, containerID string) error {
	timeout := 10
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	return nil
}

// EnsureImage pulls the browser image unless it is already present
func (d *DockerLauncher) EnsureImage(ctx context.Context) error {
	images, err := d.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == d.opts.DockerImage {
				return nil
			}
		}
	}

	d.logger.Info("Pulling browser image", zap.String("image", d.opts.DockerImage))
	reader, err := d.client.ImagePull(ctx, d.opts.DockerImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client
func (d *DockerLauncher) Close() error {
	return d.client.Close()
}

// waitForBrowserReady polls the /json/version endpoint until Chrome answers
func (d *DockerLauncher) waitForBrowserReady(ctx context.Context, baseURL string) error {
	url := baseURL + "/json/version"

	for i := 0; i < d.readyRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.readyInterval):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", d.readyRetries)
}

// argsJSON encodes Chromium flags the way browserless expects in DEFAULT_LAUNCH_ARGS
func argsJSON(args []string) string {
	if args == nil {
		args = []string{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "[]"
	}
	return string(data)
}
