package flow

import (
	"context"

	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/internal/util"
)

// InstructionProvider supplies system instruction text at run time.
type InstructionProvider interface {
	Instruction(ctx context.Context, sess *core.Session) (string, error)
}

// InstructionFunc is a functional adapter for InstructionProvider.
type InstructionFunc func(ctx context.Context, sess *core.Session) (string, error)

// Instruction implements InstructionProvider.
func (f InstructionFunc) Instruction(ctx context.Context, sess *core.Session) (string, error) {
	return f(ctx, sess)
}

// Instruction is either a static template or a dynamic provider. Static text
// may reference template variables ({{.session_id}}, {{.input}} and any
// Options.InstructionVars entry).
type Instruction struct {
	text     string
	provider InstructionProvider
}

// NewInstructionFromText creates an Instruction from static template text.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p InstructionProvider) Instruction { return Instruction{provider: p} }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.text == "" && i.provider == nil }

// Resolve returns the rendered instruction text.
func (i Instruction) Resolve(ctx context.Context, sess *core.Session, vars map[string]any) (string, error) {
	text := i.text
	if i.provider != nil {
		var err error
		if text, err = i.provider.Instruction(ctx, sess); err != nil {
			return "", err
		}
	}
	return util.RenderTemplate(text, vars)
}
