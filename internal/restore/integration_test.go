//go:build integration

package restore_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"snaprestore.io/snaprestore-cli/internal/cluster"
	"snaprestore.io/snaprestore-cli/internal/restore"
)

const searchImage = "docker.elastic.co/elasticsearch/elasticsearch:7.17.18"

func startSearchCluster(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        searchImage,
			ExposedPorts: []string{"9200/tcp"},
			Env: map[string]string{
				"discovery.type":         "single-node",
				"xpack.security.enabled": "false",
				"path.repo":              "/tmp/snapshots",
				"ES_JAVA_OPTS":           "-Xms512m -Xmx512m",
			},
			WaitingFor: wait.ForHTTP("/_cluster/health?wait_for_status=yellow").
				WithPort("9200/tcp").
				WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.PortEndpoint(ctx, "9200/tcp", "http")
	require.NoError(t, err)
	return endpoint
}

func call(t *testing.T, method, url, body string) {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, resp.StatusCode, 300, "%s %s returned %d", method, url, resp.StatusCode)
}

func shortSleep(ctx context.Context, d time.Duration) error {
	return restore.Sleep(ctx, 250*time.Millisecond)
}

func TestRestoreAgainstRealCluster(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	base := startSearchCluster(t)

	call(t, http.MethodPut, base+"/_snapshot/fs-snapshots", `{"type":"fs","settings":{"location":"/tmp/snapshots/fs"}}`)
	call(t, http.MethodPut, base+"/content/_doc/1?refresh=true", `{"title":"first"}`)
	call(t, http.MethodPut, base+"/content/_doc/2?refresh=true", `{"title":"second"}`)
	call(t, http.MethodPut, base+"/_snapshot/fs-snapshots/nightly?wait_for_completion=true", `{"indices":"content"}`)
	call(t, http.MethodDelete, base+"/content", "")

	client, err := cluster.New(base)
	require.NoError(t, err)

	var out bytes.Buffer
	o := restore.NewOrchestrator(client,
		restore.WithOutput(&out),
		restore.WithSleep(shortSleep),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := o.Run(ctx, restore.Request{
		Cluster:    "local",
		Repository: "fs-snapshots",
		Snapshot:   "nightly",
		Index:      "content",
	})
	require.NoError(t, err)
	assert.Equal(t, restore.StateCompleted, res.State)
	assert.Positive(t, res.Progress.FilesTotal)
	assert.Equal(t, res.Progress.FilesTotal, res.Progress.FilesRecovered)
}

func TestRestoreAgainstRealCluster_MissingRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	base := startSearchCluster(t)

	client, err := cluster.New(base)
	require.NoError(t, err)

	res, err := restore.NewOrchestrator(client).Run(context.Background(), restore.Request{
		Cluster:    "local",
		Repository: "does-not-exist",
		Snapshot:   "nightly",
		Index:      "content",
	})
	require.Error(t, err)
	assert.Equal(t, restore.KindRepository, restore.KindOf(err))
	assert.Equal(t, restore.StateFailed, res.State)
}
