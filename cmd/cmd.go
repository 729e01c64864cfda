package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/webitel/cluster-grpclb/cmd/topologytui"
	"github.com/webitel/cluster-grpclb/config"
)

const (
	ServiceName      = "cluster-grpclb"
	ServiceNamespace = "webitel"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

// Run is the process entry point: a urfave/cli app exposing the demo
// "client" command (builds the cluster load balancer and holds it open)
// and the "tui" command (a live termui dashboard over the same state).
func Run() error {
	app := &cli.App{
		Name:  ServiceName,
		Usage: "Demo client for the cluster-aware gRPC load balancer",
		Commands: []*cli.Command{
			clientCmd(),
			topologytui.Command(),
		},
	}

	return app.Run(os.Args)
}

func clientCmd() *cli.Command {
	return &cli.Command{
		Name:    "client",
		Aliases: []string{"c"},
		Usage:   "Dial cluster:///primary and hold the channel open",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "path to the configuration file"},
			&cli.StringSliceFlag{Name: "seeds", Usage: "seed endpoints, host:port"},
			&cli.BoolFlag{Name: "tls.enabled", Usage: "use TLS for seed and subchannel transport"},
			&cli.IntFlag{Name: "subset.size", Usage: "bound the Ready set to N subchannels (0 disables)"},
			&cli.StringFlag{Name: "amqp.uri", Usage: "AMQP URI for topology event fan-out"},
			&cli.StringFlag{Name: "admin_http.addr", Usage: "listen address for the admin HTTP diagnostics surface"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfigFromCLI(c)
			if err != nil {
				return err
			}

			app := NewApp(cfg)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("CLIENT_SHUTTING_DOWN")
			return app.Stop(context.Background())
		},
	}
}

// loadConfigFromCLI bridges urfave/cli's parsed flag values into the
// pflag.FlagSet (built by config.Flags) that config.LoadConfig binds
// against, so values given on the command line go through the same viper
// binding as environment variables and the config file while urfave/cli
// still owns command dispatch. Only flags the user actually set are copied.
func loadConfigFromCLI(c *cli.Context) (*config.Config, error) {
	fs := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	config.Flags(fs)

	for _, name := range []string{"config_file", "amqp.uri", "admin_http.addr"} {
		if !c.IsSet(name) {
			continue
		}
		if err := fs.Set(name, c.String(name)); err != nil {
			return nil, fmt.Errorf("cmd: invalid --%s: %w", name, err)
		}
	}
	if c.IsSet("tls.enabled") {
		if err := fs.Set("tls.enabled", strconv.FormatBool(c.Bool("tls.enabled"))); err != nil {
			return nil, fmt.Errorf("cmd: invalid --tls.enabled: %w", err)
		}
	}
	if c.IsSet("subset.size") {
		if err := fs.Set("subset.size", strconv.Itoa(c.Int("subset.size"))); err != nil {
			return nil, fmt.Errorf("cmd: invalid --subset.size: %w", err)
		}
	}
	if c.IsSet("seeds") {
		if err := fs.Set("seeds", strings.Join(c.StringSlice("seeds"), ",")); err != nil {
			return nil, fmt.Errorf("cmd: invalid --seeds: %w", err)
		}
	}

	return config.LoadConfig(fs)
}
