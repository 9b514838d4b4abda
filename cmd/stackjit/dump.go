package main

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stackjit/stackjit"
	"github.com/stackjit/stackjit/internal/jit"
)

func newDumpCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dump FILE FUNC",
		Short: "Compile a function regardless of its hotness and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.dump(cmd, args[0], args[1])
		},
	}
}

func (o *options) dump(cmd *cobra.Command, path, name string) error {
	f, err := loadFunction(path, name)
	if err != nil {
		return err
	}
	config, err := o.runtimeConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(out, "%s args=%d stack=%d size=%d\n", bold(f), f.ArgCount, f.StackSize, len(f.Code))

	targets, err := jit.BranchTargets(f.Code, jit.DefaultTargetCapacity)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "targets: %v\n", targets)

	r := stackjit.NewRuntimeWithConfig(config)
	defer r.Close()

	if err = r.Compile(f); err != nil {
		fmt.Fprintf(out, "phase: %s\n", r.Phase(f))
		return err
	}
	native := r.NativeCode(f)
	fmt.Fprintf(out, "phase: %s\n", r.Phase(f))
	fmt.Fprintf(out, "native code: %d bytes (%s)\n", len(native), r.Backend())
	fmt.Fprint(out, hex.Dump(native))
	return nil
}
