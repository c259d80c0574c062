package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// CleanupLabel marks containers created by tests so interrupted runs can be
// swept up later.
const CleanupLabel = "astrofix-test"

// TestingT is the subset of testing.T the docker helpers need.
type TestingT interface {
	Name() string
	Cleanup(func())
	Logf(format string, args ...any)
	Helper()
}

// DockerClient returns a docker client and registers a cleanup hook that
// removes every container this test labeled. Panics when docker is not
// available, which fails the whole docker-backed test binary loudly instead
// of one test at a time.
func DockerClient(t TestingT) *client.Client {
	t.Helper()

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		panic(fmt.Sprintf("failed to create docker client: %v", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		panic(fmt.Sprintf("docker is not running: %v", err))
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := removeLabeled(ctx, cli, t.Name(), t.Logf); err != nil {
			t.Logf("container cleanup: %v", err)
		}
	})

	return cli
}

// UniqueContainerName builds a per-test container name:
// astrofix-test-<prefix>-<testname>-<random>.
func UniqueContainerName(t TestingT, prefix string) string {
	t.Helper()
	return fmt.Sprintf("astrofix-test-%s-%s-%s", prefix, sanitizeName(t.Name()), randString(4))
}

// ContainerLabels returns the labels test containers must carry for cleanup
// to find them.
func ContainerLabels(t TestingT) map[string]string {
	return map[string]string{
		CleanupLabel: t.Name(),
	}
}

// CleanupAllTestContainers removes every astrofix-test container regardless
// of which test created it. Intended for sweeping up after interrupted runs.
func CleanupAllTestContainers(ctx context.Context) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	return removeLabeled(ctx, cli, "", func(string, ...any) {})
}

// removeLabeled stops and force-removes containers carrying the cleanup
// label. An empty testName matches every labeled container.
func removeLabeled(ctx context.Context, cli *client.Client, testName string, logf func(string, ...any)) error {
	filterArgs := filters.NewArgs()
	if testName == "" {
		filterArgs.Add("label", CleanupLabel)
	} else {
		filterArgs.Add("label", fmt.Sprintf("%s=%s", CleanupLabel, testName))
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		stopTimeout := 10
		if err := cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &stopTimeout}); err != nil {
			logf("failed to stop container %s: %v", c.Names[0], err)
		}
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{
			Force:         true,
			RemoveVolumes: true,
		}); err != nil {
			return fmt.Errorf("failed to remove container %s: %w", c.Names[0], err)
		}
		logf("cleaned up container %s", c.Names[0])
	}
	return nil
}

func randString(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// sanitizeName reduces a test name to characters docker accepts in container
// names, capped so the full name stays readable in docker ps.
func sanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			result = append(result, c)
		} else if c == '/' || c == '_' || c == '-' {
			result = append(result, '-')
		}
	}
	if len(result) > 30 {
		result = result[:30]
	}
	return string(result)
}
