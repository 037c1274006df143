package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/metaworking/meshsync/pkg/receiver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = "../../pkg/host/memhost/testdata/scene.yaml"

func run(t *testing.T, args ...string) (string, error) {
	cmd, a := newRootCommand()
	defer a.shutdown()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "meshsync dev\n", out)
}

func TestSyncDryRun(t *testing.T) {
	out, err := run(t, "sync", fixture, "--dry-run", "--config", "../../config/meshsync.yaml", "--log-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "seq 1: ")
	assert.Contains(t, out, " 2 materials, 1 clips")
}

func TestSyncRejectsBadFlags(t *testing.T) {
	_, err := run(t, "sync", fixture, "--dry-run", "--normals", "sideways")
	assert.Error(t, err)

	_, err = run(t, "sync")
	assert.Error(t, err)

	_, err = run(t, "sync", "missing.yaml", "--dry-run")
	assert.Error(t, err)
}

func TestSyncToReceiver(t *testing.T) {
	settings := receiver.DefaultSettings()
	settings.Address = "127.0.0.1:0"
	srv, err := receiver.Listen(settings)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)
	defer srv.Close()

	received := srv.SceneReceived.Wait()
	_, err = run(t, "sync", fixture, "--address", srv.Addr().String(), "--session", "cli")
	require.NoError(t, err)

	select {
	case data := <-received:
		assert.Equal(t, "cli", data.Session.Name())
		assert.NotNil(t, data.Session.Find("/Root/Body"))
	case <-time.After(5 * time.Second):
		t.Fatal("no scene received")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	settings := receiver.DefaultSettings()
	settings.Address = "127.0.0.1:0"
	settings.MetricsAddress = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, settings) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
