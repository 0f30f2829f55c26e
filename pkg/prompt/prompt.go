package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// ErrAborted is returned by Run when the wizard is quit before completion.
var ErrAborted = errors.New("wizard cancelled")

var completions = []string{"back", "list", "done", "manual", "auto", "unset", "help", "quit"}

// Run drives s from the terminal until the wizard completes or is quit.
func Run(ctx context.Context, s *Session) (workflow.MCPNodeData, error) {
	completer := readline.NewPrefixCompleter()
	for _, c := range completions {
		completer.Children = append(completer.Children, readline.PcItem(c))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.Prompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          s.out,
	})
	if err != nil {
		return nil, fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(s.out, "wfstudio wizard. Type 'help' for commands.\n\n")
	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	for !s.Ended() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil, ErrAborted
			}
			return nil, err
		}
		s.Handle(ctx, line)
	}

	if data, ok := s.Result(); ok {
		return data, nil
	}
	return nil, ErrAborted
}
