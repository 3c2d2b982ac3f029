package config

import (
	"fmt"

	"github.com/google/shlex"
)

// ParseCommandLine tokenizes one entry from a .qubesbuilder
// "commands:" list the way a shell would, so the config resolver can
// validate a command's argv shape (e.g. reject an empty command, or
// one whose first token isn't on an allowed list) before it's ever
// handed to an Executor.
func ParseCommandLine(cmd string) ([]string, error) {
	tokens, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("config: tokenize command %q: %w", cmd, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("config: empty command")
	}
	return tokens, nil
}
