package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/limitwatch/limitwatch/internal/web"
)

var (
	servePort     int
	serveInterval time.Duration
	serveNotify   string
)

func init() {
	cmdServe.Flags().IntVarP(&servePort, "port", "p", 0, "override the web server port")
	cmdServe.Flags().DurationVarP(&serveInterval, "interval", "i", 0, "override the poll interval (e.g. 5s)")
	cmdServe.Flags().StringVarP(&serveNotify, "notify", "n", "", "notification mode: log, zenity or prompt")
	rootCmd.AddCommand(cmdServe)
}

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Monitor in the foreground with the web API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{notifyMode: serveNotify, interval: serveInterval})
		if err != nil {
			return err
		}
		defer a.Close()

		usr1, stopUSR1 := catchSimulate()
		defer stopUSR1()

		release, err := claimPIDFile(a.cfg)
		if err != nil {
			return err
		}
		defer release()

		if servePort > 0 {
			if err := a.cfg.SetWebPort(servePort); err != nil {
				return err
			}
		}

		handler := web.NewHandler(a.monitor, a.repo, a.logger)
		server := web.NewServer(a.cfg.Web, handler, 0, a.logger)

		ctx, stop := shutdownContext(cmd.Context())
		defer stop()

		a.logger.Info("web API available", "url", "http://"+server.GetAddress())
		return a.Run(ctx, simulateOnSignal(usr1, a.monitor, a.logger), server.Run)
	},
}
