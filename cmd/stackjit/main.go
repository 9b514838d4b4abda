package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stackjit/stackjit"
	"github.com/stackjit/stackjit/internal/jit"
)

func main() {
	doMain(os.Args[1:], os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	cmd := newRootCommand(viper.New(), stdErr)
	cmd.SetArgs(args)
	cmd.SetOut(stdOut)
	cmd.SetErr(stdErr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stdErr, color.RedString(err.Error()))
		exit(1)
		return
	}
	exit(0)
}

// options are the settings shared by every subcommand, resolved from flags and STACKJIT_* environment variables.
type options struct {
	v      *viper.Viper
	logger zerolog.Logger
}

func newRootCommand(v *viper.Viper, stdErr io.Writer) *cobra.Command {
	o := &options{v: v, logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "stackjit",
		Short:         "Run, disassemble and compile stack machine bytecode",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init(stdErr)
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "warn", "Log level: trace, debug, info, warn, error or disabled")
	flags.String("backend", stackjit.BackendAuto.String(), "Compiler backend: auto, portable or native")
	flags.Int32("threshold", jit.DefaultThreshold, "Interpreted calls before a function is compiled")
	flags.Bool("no-color", false, "Disable colored output")

	v.SetEnvPrefix("stackjit")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(flags)

	root.AddCommand(newRunCommand(o), newDumpCommand(o), newDisasmCommand())
	return root
}

// init configures colors and logging once flags are parsed.
func (o *options) init(stdErr io.Writer) error {
	noColor := o.v.GetBool("no-color")
	if noColor {
		color.NoColor = true
	}
	level, err := zerolog.ParseLevel(o.v.GetString("log-level"))
	if err != nil {
		return err
	}
	o.logger = zerolog.New(zerolog.ConsoleWriter{Out: stdErr, NoColor: noColor}).Level(level).With().Timestamp().Logger()
	return nil
}

// runtimeConfig returns the configuration selected by --backend and --threshold.
func (o *options) runtimeConfig() (*stackjit.RuntimeConfig, error) {
	backend, err := stackjit.ParseBackend(o.v.GetString("backend"))
	if err != nil {
		return nil, err
	}
	if backend == stackjit.BackendNative && !stackjit.NativeSupported {
		return nil, fmt.Errorf("backend %s is not supported on this platform", backend)
	}
	return stackjit.NewRuntimeConfig().
		WithBackend(backend).
		WithHotnessThreshold(o.v.GetInt32("threshold")).
		WithLogger(o.logger), nil
}
