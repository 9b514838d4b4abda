package main

import (
	"github.com/spf13/cobra"

	"github.com/stackjit/stackjit/bytecode"
)

func newDisasmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm FILE",
		Short: "Assemble a text program and print it back with offsets and labels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProgram(args[0])
			if err != nil {
				return err
			}
			return bytecode.DisassembleProgram(cmd.OutOrStdout(), p)
		},
	}
}
