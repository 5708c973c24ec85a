package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-scanner/backend/internal/app"
	"github.com/codyseavey/tcg-scanner/backend/internal/config"
)

type commandContext struct {
	configFlag *string

	engineOnce sync.Once
	engine     *app.Engine
	engineErr  error
}

// ensureEngine loads configuration and the catalog once per invocation.
func (c *commandContext) ensureEngine() (*app.Engine, error) {
	c.engineOnce.Do(func() {
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			os.Setenv("CONFIG_PATH", path)
		}
		cfg, err := config.Load()
		if err != nil {
			c.engineErr = err
			return
		}
		c.engine, c.engineErr = app.NewEngine(cfg)
	})
	return c.engine, c.engineErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "cardid",
		Short:         "Identify trading cards against the reference catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (overrides CONFIG_PATH)")

	rootCmd.AddCommand(newHashgenCommand(ctx))
	rootCmd.AddCommand(newIdentifyTextCommand(ctx))
	rootCmd.AddCommand(newIdentifyImageCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))

	return rootCmd
}
