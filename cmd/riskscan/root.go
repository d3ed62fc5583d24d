package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"riskscan/internal/config"
	"riskscan/internal/logging"
)

type app struct {
	cfgFile  string
	cfg      config.Config
	log      *logrus.Logger
	logClose io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "riskscan",
		Short:         "Queue-driven network vulnerability scanning with risk-rated findings",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			log, closer, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg, a.log, a.logClose = cfg, log, closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logClose != nil {
				_ = a.logClose.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file (settings can also come from RISKSCAN_* variables)")

	root.AddCommand(
		newServeCmd(a),
		newWorkerCmd(a),
		newMigrateCmd(a),
		newSubmitCmd(a),
		newScanCmd(a),
	)
	return root
}
