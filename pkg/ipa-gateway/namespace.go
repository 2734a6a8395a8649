package ipagateway

import (
	"fmt"
	"strings"

	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipatools"
)

// NamespaceStrategy maps tool names to the names advertised to MCP clients.
// Implementations must be deterministic and reversible.
type NamespaceStrategy interface {
	ToolName(tool ipatools.Name) string
	NativeToolName(exposed string) (ipatools.Name, bool)
}

// PlainNamespace exposes tools under their own names.
type PlainNamespace struct{}

func (PlainNamespace) ToolName(tool ipatools.Name) string { return string(tool) }

func (PlainNamespace) NativeToolName(exposed string) (ipatools.Name, bool) {
	return ipatools.Name(exposed), exposed != ""
}

// PrefixNamespace prefixes every tool with a fixed label, separating fields
// with a configurable delimiter (defaults to "__" to stay within the MCP
// spec's character guidance). It lets several FreeIPA servers sit behind one
// MCP client without name clashes.
type PrefixNamespace struct {
	Prefix    string
	Separator string
}

func (p PrefixNamespace) separator() string {
	if p.Separator == "" {
		return "__"
	}
	return p.Separator
}

func (p PrefixNamespace) ToolName(tool ipatools.Name) string {
	if p.Prefix == "" {
		return string(tool)
	}
	return fmt.Sprintf("%s%s%s", p.Prefix, p.separator(), tool)
}

func (p PrefixNamespace) NativeToolName(exposed string) (ipatools.Name, bool) {
	if p.Prefix == "" {
		return ipatools.Name(exposed), exposed != ""
	}
	prefix := p.Prefix + p.separator()
	if !strings.HasPrefix(exposed, prefix) || len(exposed) == len(prefix) {
		return "", false
	}
	return ipatools.Name(strings.TrimPrefix(exposed, prefix)), true
}
