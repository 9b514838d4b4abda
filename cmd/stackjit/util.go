package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stackjit/stackjit/api"
	"github.com/stackjit/stackjit/bytecode"
)

// loadProgram parses and validates the text bytecode at path.
func loadProgram(path string) (*bytecode.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := bytecode.ParseProgram(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err = p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// loadFunction returns the function named name from the program at path.
func loadFunction(path, name string) (*bytecode.Function, error) {
	p, err := loadProgram(path)
	if err != nil {
		return nil, err
	}
	if f := p.Function(name); f != nil {
		return f, nil
	}
	return nil, fmt.Errorf("function %q not found in %s (have %s)", name, path, strings.Join(p.Names(), ", "))
}

func parseArgs(args []string) ([]api.Value, error) {
	ret := make([]api.Value, len(args))
	for i, arg := range args {
		v, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %q is not a 32-bit integer", i, arg)
		}
		ret[i] = api.NewInt(int32(v))
	}
	return ret, nil
}
