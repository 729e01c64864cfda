// Package topologytui renders a live termui dashboard over the resolver's
// last published topology and the balancer's subchannel snapshot, reusing
// the same read-only accessors internal/adminhttp exposes over HTTP.
package topologytui

import (
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"google.golang.org/grpc"

	clusterlb "github.com/webitel/cluster-grpclb"
	"github.com/webitel/cluster-grpclb/config"
	"github.com/webitel/cluster-grpclb/internal/clusterbalancer"
	"github.com/webitel/cluster-grpclb/internal/clusterresolver"
	"github.com/webitel/cluster-grpclb/internal/clustertypes"
	"github.com/webitel/cluster-grpclb/internal/topologysource/staticsource"
)

// Command returns the "tui" urfave/cli command: it builds its own
// clusterlb.Builder over the staticsource demo topology source (the seeds
// themselves, reported as the full eligible topology) and renders until the
// user quits.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Live dashboard of seeds, topology and subchannel state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config_file", Usage: "path to the configuration file"},
			&cli.StringSliceFlag{Name: "seeds", Usage: "seed endpoints, host:port"},
			&cli.DurationFlag{Name: "refresh", Value: 2 * time.Second, Usage: "dashboard refresh interval"},
		},
		Action: func(c *cli.Context) error {
			fs := pflag.NewFlagSet("tui", pflag.ContinueOnError)
			config.Flags(fs)
			if c.IsSet("config_file") {
				if err := fs.Set("config_file", c.String("config_file")); err != nil {
					return err
				}
			}
			if c.IsSet("seeds") {
				seeds := c.StringSlice("seeds")
				joined := ""
				for i, s := range seeds {
					if i > 0 {
						joined += ","
					}
					joined += s
				}
				if err := fs.Set("seeds", joined); err != nil {
					return err
				}
			}

			cfg, err := config.LoadConfig(fs)
			if err != nil {
				return fmt.Errorf("topologytui: %w", err)
			}

			seeds := make([]clustertypes.Endpoint, 0, len(cfg.Seeds))
			for _, raw := range cfg.Seeds {
				ep, err := clustertypes.ParseEndpoint(raw)
				if err != nil {
					return fmt.Errorf("topologytui: %w", err)
				}
				seeds = append(seeds, ep)
			}

			builder := clusterlb.New().
				WithSeeds(seeds...).
				WithPollingTopologySource(staticsource.New(seeds), cfg.Resilience.InitialBackoff)
			if err := builder.Build(); err != nil {
				return fmt.Errorf("topologytui: %w", err)
			}

			conn, err := grpc.NewClient("cluster:///primary", builder.ConfigureChannel()...)
			if err != nil {
				return fmt.Errorf("topologytui: %w", err)
			}
			defer conn.Close()
			conn.Connect()

			resolverH, balancerH := builder.Handles()
			return Run(resolverH, balancerH, c.Duration("refresh"))
		},
	}
}

// Run drives the dashboard against live resolver/balancer state until the
// user presses 'q'/Ctrl-C.
func Run(topology *clusterresolver.Handle, subchannel *clusterbalancer.Handle, refreshEvery time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("topologytui: init: %w", err)
	}
	defer ui.Close()

	topologyBox := widgets.NewParagraph()
	topologyBox.Title = "Topology"
	topologyBox.SetRect(0, 0, 80, 10)

	subchannelTable := widgets.NewTable()
	subchannelTable.Title = "Subchannels"
	subchannelTable.Rows = [][]string{{"address", "priority", "state"}}
	subchannelTable.SetRect(0, 10, 80, 30)

	render := func() {
		topologyBox.Text = renderTopology(topology)
		subchannelTable.Rows = renderSubchannels(subchannel)
		ui.Render(topologyBox, subchannelTable)
	}
	render()

	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	events := ui.PollEvents()
	for {
		select {
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			render()
		}
	}
}

func renderTopology(source *clusterresolver.Handle) string {
	top, ok := source.Snapshot()
	if !ok {
		return "no topology published yet"
	}
	return fmt.Sprintf("nodes: %d  eligible: %d", top.Count, top.EligibleCount)
}

func renderSubchannels(source *clusterbalancer.Handle) [][]string {
	rows := [][]string{{"address", "priority", "state"}}
	for _, sc := range source.Subchannels() {
		rows = append(rows, []string{sc.Addr, fmt.Sprintf("%d", sc.Priority), sc.State})
	}
	return rows
}
