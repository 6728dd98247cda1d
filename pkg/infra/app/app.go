// Package app wires a command line application out of Cobra, Viper and Pflag.
//
// Options are read in this order, later sources winning: flag defaults, the
// YAML config file, HANDBOOK_* style environment variables, explicitly set
// flags.
//
//	a := app.NewApp(
//	    app.WithName("handbook-rag"),
//	    app.WithDescription("Module handbook question answering API"),
//	    app.WithOptions(opts),
//	    app.WithRunFunc(run),
//	)
//	a.Run()
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kart-io/version"
	"github.com/spf13/cobra"

	cliflag "github.com/kart-io/handbook-rag/pkg/app/cliflag"
	options "github.com/kart-io/handbook-rag/pkg/options/app"
)

// App is a single-command application.
type App struct {
	name        string
	description string
	options     options.CliOptions
	runFunc     RunFunc
	noVersion   bool
	cmd         *cobra.Command
}

// RunFunc is called once options are loaded, completed and validated.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithName sets the command name. It also selects the config file name and
// the environment variable prefix.
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithDescription sets the long help text.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions sets the options filled from flags, config and environment.
func WithOptions(opts options.CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the run function.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithNoVersion drops the --version flag.
func WithNoVersion() Option {
	return func(a *App) { a.noVersion = true }
}

// NewApp creates a new application instance.
func NewApp(opts ...Option) *App {
	a := &App{name: filepath.Base(os.Args[0])}
	for _, opt := range opts {
		opt(a)
	}
	a.cmd = a.buildCommand()
	return a
}

func (a *App) buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          a.name,
		Long:         a.description,
		RunE:         a.runCommand,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().StringP("config", "c", "", "Path to config file")
	if !a.noVersion {
		version.AddFlags(cmd.PersistentFlags())
	}

	if a.options == nil {
		return cmd
	}

	fss := a.options.Flags()
	for _, name := range fss.Order {
		cmd.Flags().AddFlagSet(fss.FlagSets[name])
	}
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		fmt.Fprintf(c.OutOrStderr(), "Usage:\n  %s\n", c.UseLine())
		cliflag.PrintSections(c.OutOrStderr(), fss, 0)
		fmt.Fprintf(c.OutOrStderr(), "\nGlobal flags:\n\n%s", c.PersistentFlags().FlagUsages())
		return nil
	})
	cmd.SetHelpFunc(func(c *cobra.Command, _ []string) {
		fmt.Fprintf(c.OutOrStdout(), "%s\n\n", c.Long)
		c.SetOut(c.OutOrStdout())
		_ = c.Usage()
	})
	return cmd
}

func (a *App) runCommand(cmd *cobra.Command, _ []string) error {
	if !a.noVersion {
		version.PrintAndExitIfRequested()
	}

	if a.options != nil {
		configFile, _ := cmd.Flags().GetString("config")
		if err := newConfigLoader(a.name, configFile).load(cmd.Flags(), a.options); err != nil {
			return err
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// Run executes the application and exits non-zero on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Command returns the cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// GetVersion returns the git version the binary was built from.
func GetVersion() string {
	return version.Get().GitVersion
}
