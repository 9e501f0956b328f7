package types

import "context"

// Prompt is a yes/no question put to the user.
type Prompt struct {
	Title   string
	Message string
	OK      string // label of the confirming choice
	Cancel  string // label of the declining choice
}

// Prompter asks the user to confirm. It blocks until the user answers;
// there is no timeout.
type Prompter interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, p Prompt) (bool, error)

func (f PrompterFunc) Confirm(ctx context.Context, p Prompt) (bool, error) { return f(ctx, p) }
