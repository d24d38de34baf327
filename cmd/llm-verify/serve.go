package main

import (
	"github.com/gin-gonic/gin"
	"github.com/johnayoung/llm-verify/internal/config"
	"github.com/johnayoung/llm-verify/internal/metrics"
	"github.com/johnayoung/llm-verify/internal/server"
	"github.com/johnayoung/llm-verify/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		addr  string
		model string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		Long: `Serve exposes one verification session over HTTP. Starting a run
supersedes the run in flight. Progress is available as server-sent events on
/v1/runs/current/events and Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, false, func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.Server.Addr = addr
				}
				if cmd.Flags().Changed("model") {
					c.Model = model
				}
			})
			if err != nil {
				return err
			}
			defer a.close()
			cfg := a.cfg

			if cfg.Log.Level != "debug" && g.logLevel != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			r, err := a.newRunner(m)
			if err != nil {
				return err
			}

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			sess := session.New(r, cfg.Model,
				session.WithConsensus(cfg.Consensus),
				session.WithRecorder(store),
				session.WithLogger(a.logger),
				session.WithMetrics(m),
			)

			srv := server.New(sess,
				server.WithHistory(store),
				server.WithGatherer(reg),
				server.WithLogger(a.logger),
				server.WithDefaultAttempts(cfg.Attempts),
			)
			return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model to query (default from config)")
	return cmd
}
