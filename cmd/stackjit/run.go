package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackjit/stackjit"
	"github.com/stackjit/stackjit/api"
)

func newRunCommand(o *options) *cobra.Command {
	var calls int
	cmd := &cobra.Command{
		Use:   "run FILE FUNC [ARGS...]",
		Short: "Call a function, compiling it once it is hot",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0], args[1], args[2:], calls)
		},
	}
	cmd.Flags().IntVarP(&calls, "calls", "n", 1, "Number of times to call the function")
	return cmd
}

func (o *options) run(cmd *cobra.Command, path, name string, rawArgs []string, calls int) error {
	f, err := loadFunction(path, name)
	if err != nil {
		return err
	}
	args, err := parseArgs(rawArgs)
	if err != nil {
		return err
	}
	config, err := o.runtimeConfig()
	if err != nil {
		return err
	}

	r := stackjit.NewRuntimeWithConfig(config)
	defer r.Close()

	out := cmd.OutOrStdout()
	compiled := color.New(color.FgGreen).SprintFunc()
	interpreted := color.New(color.FgYellow).SprintFunc()
	for i := 1; i <= calls; i++ {
		v, err := r.Call(f, args...)
		if err != nil {
			return fmt.Errorf("call %d: %w", i, err)
		}
		// Call compiles before running, so a compiled phase means this call ran compiled code.
		if r.Phase(f) == api.PhaseCompiled {
			fmt.Fprintf(out, "call %d: %s %s\n", i, v, compiled("(compiled, "+r.Backend().String()+")"))
		} else {
			fmt.Fprintf(out, "call %d: %s %s\n", i, v, interpreted("(interpreted)"))
		}
	}

	s := r.Stats()
	fmt.Fprintf(out, "%s: phase=%s hotness=%d attempts=%d compiled=%d failed=%d disqualified=%d\n",
		f, r.Phase(f), r.Hotness(f), s.Attempts, s.Compiled, s.Failed, s.Disqualified)
	return nil
}
