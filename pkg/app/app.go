// Copyright 2025 The R1FS Agent Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app builds cobra commands around NamedFlagSetOptions: flags are
// merged with a config file and the environment through viper, then
// completed and validated before the run function is called.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"
)

// RunFunc is the main body of a command.
type RunFunc func() error

// Command is a subcommand sharing the application's options.
type Command struct {
	Use   string
	Short string
	Args  cobra.PositionalArgs
	Run   func(ctx context.Context, args []string) error
}

type App struct {
	name        string
	shortDesc   string
	description string
	envPrefix   string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	noConfig    bool
	args        cobra.PositionalArgs
	commands    []*Command
	cfgFile     *string
	viper       *viper.Viper
	cmd         *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig drops the --config flag and the viper merge.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithEnvPrefix sets the prefix of environment overrides. Defaults to the app name.
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

// WithDefaultValidArgs rejects positional arguments on the root command.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

func WithCommands(cmds ...*Command) Option {
	return func(a *App) { a.commands = append(a.commands, cmds...) }
}

func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		envPrefix: strings.ToUpper(strings.ReplaceAll(name, "-", "_")),
		viper:     viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the root cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the application and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	if a.runFunc != nil {
		cmd.RunE = func(cmd *cobra.Command, _ []string) error {
			if err := a.prepare(cmd); err != nil {
				return err
			}
			return a.runFunc()
		}
	}

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}

	if !a.noConfig {
		a.cfgFile = addConfigFlag(a.viper, fss.FlagSet("global"), a.envPrefix)
	}
	globalflag.AddGlobalFlags(fss.FlagSet("global"), cmd.Name())

	// Persistent, so subcommands share the options.
	fs := cmd.PersistentFlags()
	for _, f := range fss.FlagSets {
		fs.AddFlagSet(f)
	}

	for _, sub := range a.commands {
		cmd.AddCommand(a.subCommand(sub))
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) subCommand(sub *Command) *cobra.Command {
	return &cobra.Command{
		Use:           sub.Use,
		Short:         sub.Short,
		Args:          sub.Args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.prepare(cmd); err != nil {
				return err
			}
			return sub.Run(cmd.Context(), args)
		},
	}
}

// prepare merges flags, config file and environment into the options,
// then completes and validates them.
func (a *App) prepare(cmd *cobra.Command) error {
	if a.options == nil {
		return nil
	}

	if !a.noConfig {
		if err := readConfig(a.viper, *a.cfgFile, a.name); err != nil {
			return err
		}
		if err := a.viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := a.viper.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode configuration: %w", err)
		}
	}

	if err := a.options.Complete(); err != nil {
		return err
	}
	return a.options.Validate()
}
