//go:build unix

package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/auto-dns/nodehostd/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("app.listen_addr", "127.0.0.1:0")
	v.Set("lxc.bin_dir", t.TempDir())
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestNewDefaultsNodeName(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if cfg.App.NodeName == "" {
		t.Fatal("node name was not defaulted")
	}
	if a.rt.Name() != config.DriverLXC {
		t.Fatalf("driver = %s", a.rt.Name())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
