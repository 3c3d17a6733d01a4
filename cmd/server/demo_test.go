package main

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webbridge/internal/client/headless"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/server"
)

func TestDemoBindings(t *testing.T) {
	cfg := config.Default()
	cfg.Bridge.MultiClient = true
	cfg.RateLimit.Enabled = false
	srv, err := server.New(cfg, logging.NewNop())
	require.NoError(t, err)
	defer srv.Shutdown(context.Background())

	win := srv.Manager().NewWindow()
	d := newDemo(zap.NewNop())
	d.bind(win, srv.Manager().Exit)

	url, err := win.Show(demoPage)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := headless.Open(ctx, url, headless.Options{})
	require.NoError(t, err)
	defer alice.Close()
	bob, err := headless.Open(ctx, url, headless.Options{})
	require.NoError(t, err)
	defer bob.Close()

	// The page defines these; the headless runtime only needs stand-ins.
	for _, c := range []*headless.Client{alice, bob} {
		_, err := c.Evaluate(`
			var shown = {};
			function showNotes(note, shared, client) { shown.note = note; shown.shared = shared; shown.client = client; }
			function showShared(text) { shown.shared = text; }
		`)
		require.NoError(t, err)
	}

	ret, err := alice.CallStrings(ctx, "save", "alice's note")
	require.NoError(t, err)
	assert.Contains(t, ret.Value, "saved 12 bytes")

	ret, err = alice.CallStrings(ctx, "saveAll", "for everyone")
	require.NoError(t, err)
	assert.Equal(t, "true", ret.Value)

	assert.Eventually(t, func() bool {
		v, err := bob.Evaluate("shown.shared")
		return err == nil && v == "for everyone"
	}, 2*time.Second, 20*time.Millisecond)

	d.mu.Lock()
	assert.Equal(t, "alice's note", d.notes[alice.Hello().ClientID])
	assert.Empty(t, d.notes[bob.Hello().ClientID])
	d.mu.Unlock()

	// A reload restores the private note.
	require.NoError(t, alice.Reconnect(ctx))
	assert.Eventually(t, func() bool {
		v, err := alice.Evaluate("shown.note")
		return err == nil && v == "alice's note"
	}, 2*time.Second, 20*time.Millisecond)

	_, _ = bob.CallStrings(ctx, "exit_app")
	select {
	case <-srv.Manager().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("exit_app did not stop the bridge")
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("PORT", "9000")

	var f flags
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&f.port, "port", "", "")
	cmd.Flags().StringVar(&f.host, "host", "", "")
	cmd.Flags().BoolVar(&f.dev, "dev", false, "")
	cmd.Flags().BoolVar(&f.multiClient, "multi-client", false, "")
	cmd.Flags().BoolVar(&f.blocking, "blocking", false, "")
	cmd.Flags().StringVar(&f.rootFolder, "root", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--host", "0.0.0.0", "--multi-client"}))

	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.True(t, cfg.Bridge.MultiClient)
	assert.False(t, cfg.Bridge.EventBlocking)
}
