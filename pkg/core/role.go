package core

// RoleManifest describes what an agent role is for: the responsibility it
// owns, the inputs it expects, and the outputs it hands back. Orchestrators
// and operator tooling read manifests when routing work; the runtime itself
// never interprets them.
type RoleManifest struct {
	Role           string
	Responsibility string
	Inputs         []string
	Outputs        []string
	Constraints    map[string]any
}

// Clone returns a copy that shares no slices or maps with the original, so
// a manifest handed out to callers cannot mutate the agent's own.
func (m RoleManifest) Clone() RoleManifest {
	out := m
	if m.Inputs != nil {
		out.Inputs = append([]string(nil), m.Inputs...)
	}
	if m.Outputs != nil {
		out.Outputs = append([]string(nil), m.Outputs...)
	}
	if m.Constraints != nil {
		out.Constraints = make(map[string]any, len(m.Constraints))
		for k, v := range m.Constraints {
			out.Constraints[k] = v
		}
	}
	return out
}

// RoleManifestProvider is implemented by agents that publish a manifest.
type RoleManifestProvider interface {
	RoleManifest() RoleManifest
}
