package ipagateway

import (
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipatools"
)

const (
	metaKeyNativeName  = "freeipa.native_name"
	metaKeySessionFree = "freeipa.session_free"
)

// toolIndex maps exposed tool names back to their ipatools spec.
type toolIndex struct {
	ns NamespaceStrategy

	mu    sync.RWMutex
	tools map[ipatools.Name]ipatools.Spec
}

type toolRegistration struct {
	Tool   *mcp.Tool
	Target ipatools.Spec
}

func newToolIndex(ns NamespaceStrategy) *toolIndex {
	return &toolIndex{ns: ns, tools: make(map[ipatools.Name]ipatools.Spec)}
}

// Build indexes specs and returns the MCP tools to register, sorted by
// exposed name. Schema inference failures abort the build.
func (ti *toolIndex) Build(specs []ipatools.Spec) ([]toolRegistration, error) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	added := make([]toolRegistration, 0, len(specs))
	for _, spec := range specs {
		exposed := ti.ns.ToolName(spec.Name)
		if native, ok := ti.ns.NativeToolName(exposed); !ok || native != spec.Name {
			return nil, fmt.Errorf("ipagateway: namespace does not round-trip %q", spec.Name)
		}
		if _, dup := ti.tools[spec.Name]; dup {
			return nil, fmt.Errorf("ipagateway: duplicate tool name %q", exposed)
		}
		schema, err := spec.InputSchema()
		if err != nil {
			return nil, fmt.Errorf("ipagateway: schema for %s: %w", spec.Name, err)
		}
		ti.tools[spec.Name] = spec
		added = append(added, toolRegistration{
			Tool: &mcp.Tool{
				Name:        exposed,
				Title:       spec.Title,
				Description: spec.Description,
				InputSchema: schema,
				Meta: withMeta(nil, map[string]any{
					metaKeyNativeName:  string(spec.Name),
					metaKeySessionFree: spec.SessionFree,
				}),
			},
			Target: spec,
		})
	}
	sort.Slice(added, func(i, j int) bool { return added[i].Tool.Name < added[j].Tool.Name })
	return added, nil
}

// Lookup resolves an exposed name.
func (ti *toolIndex) Lookup(exposed string) (ipatools.Spec, bool) {
	native, ok := ti.ns.NativeToolName(exposed)
	if !ok {
		return ipatools.Spec{}, false
	}
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	spec, ok := ti.tools[native]
	return spec, ok
}

// Names lists the exposed tool names in order.
func (ti *toolIndex) Names() []string {
	ti.mu.RLock()
	names := make([]string, 0, len(ti.tools))
	for name := range ti.tools {
		names = append(names, ti.ns.ToolName(name))
	}
	ti.mu.RUnlock()
	sort.Strings(names)
	return names
}

func withMeta(base map[string]any, extras map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any)
	}
	for k, v := range extras {
		out[k] = v
	}
	return out
}
