// ABOUTME: CmdSpec is the tagged string-or-list command template variant.
// ABOUTME: YAML scalars decode as shell strings, sequences as pre-tokenized lists.
package guildfile

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// CmdKind discriminates the two command template forms.
type CmdKind int

const (
	// CmdUnset means no command template was given.
	CmdUnset CmdKind = iota
	// CmdShell is a single shell-syntax string, tokenized at build time.
	CmdShell
	// CmdTokens is a pre-tokenized argument list, used verbatim.
	CmdTokens
)

// CmdSpec is an operation's command template: either a shell-syntax string
// or a pre-tokenized argument list. The zero value is CmdUnset.
type CmdSpec struct {
	kind   CmdKind
	shell  string
	tokens []string
}

// ShellCmd constructs a shell-string command template.
func ShellCmd(s string) CmdSpec {
	return CmdSpec{kind: CmdShell, shell: s}
}

// TokenCmd constructs a pre-tokenized command template.
func TokenCmd(tokens ...string) CmdSpec {
	return CmdSpec{kind: CmdTokens, tokens: tokens}
}

// Kind reports which form the template takes.
func (c CmdSpec) Kind() CmdKind { return c.kind }

// Shell returns the shell string form. Valid only when Kind is CmdShell.
func (c CmdSpec) Shell() string { return c.shell }

// Tokens returns the token list form. Valid only when Kind is CmdTokens.
func (c CmdSpec) Tokens() []string { return c.tokens }

// UnmarshalYAML decodes a scalar as a shell string and a sequence as a
// token list. Any other node shape is an error.
func (c *CmdSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*c = ShellCmd(s)
		return nil
	case yaml.SequenceNode:
		var tokens []string
		if err := node.Decode(&tokens); err != nil {
			return err
		}
		*c = TokenCmd(tokens...)
		return nil
	default:
		return fmt.Errorf("cmd must be a string or a list (line %d)", node.Line)
	}
}

// MarshalYAML renders the template back in its original form.
func (c CmdSpec) MarshalYAML() (any, error) {
	switch c.kind {
	case CmdShell:
		return c.shell, nil
	case CmdTokens:
		return c.tokens, nil
	default:
		return nil, nil
	}
}
