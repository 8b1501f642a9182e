// Command herald runs a bridge server, a job worker, and bridge tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/petrijr/herald/internal/config"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "herald",
		Short:         "Code-first notification workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("bridge-url", "", "bridge endpoint URL")
	flags.String("secret-key", "", "bridge secret key")
	_ = a.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("bridge.url", flags.Lookup("bridge-url"))
	_ = a.v.BindPFlag("bridge.secret_key", flags.Lookup("secret-key"))

	root.AddCommand(
		newServeCmd(a),
		newWorkerCmd(a),
		newTriggerCmd(a),
		newDiscoverCmd(a),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "herald:", err)
		os.Exit(1)
	}
}
