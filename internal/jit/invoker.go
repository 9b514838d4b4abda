package jit

import (
	"fmt"

	"github.com/stackjit/stackjit/api"
)

// Invoke runs the native code of s with args and boxes the returned word as a 32-bit integer. It returns
// api.Exception and an error if s is not compiled or the code fails.
func (e *Engine) Invoke(s *State, args []api.Value) (api.Value, error) {
	if s == nil || !s.compiled {
		return api.Exception, ErrNotCompiled
	}
	words := make([]uint64, len(args))
	for i, arg := range args {
		if arg.IsException() {
			return api.Exception, fmt.Errorf("%s: argument %d is an exception", s.fn, i)
		}
		words[i] = api.EncodeInt(arg.Int())
	}
	ret, err := s.code.Call(words, max(s.fn.StackSize, 1))
	if err != nil {
		return api.Exception, fmt.Errorf("%s: %w", s.fn, err)
	}
	return api.NewInt(api.DecodeInt(ret)), nil
}
