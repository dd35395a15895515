package mapping

import "strings"

// modelAliases resolves the many names a model travels under (canonical UUID,
// provider-scoped model key, display name) to one target-document id. The
// table lives for a single build call.
type modelAliases struct {
	byAlias      map[string]string
	firstEnabled string
	enabled      map[string]struct{}
}

func newModelAliases() *modelAliases {
	return &modelAliases{
		byAlias: map[string]string{},
		enabled: map[string]struct{}{},
	}
}

func (a *modelAliases) register(canonicalID string, aliases ...string) {
	canonicalID = strings.TrimSpace(canonicalID)
	if canonicalID == "" {
		return
	}
	for _, alias := range append([]string{canonicalID}, aliases...) {
		key := aliasKey(alias)
		if key == "" {
			continue
		}
		if _, taken := a.byAlias[key]; taken {
			continue
		}
		a.byAlias[key] = canonicalID
	}
}

func (a *modelAliases) markEnabled(canonicalID string) {
	canonicalID = strings.TrimSpace(canonicalID)
	if canonicalID == "" {
		return
	}
	a.enabled[canonicalID] = struct{}{}
	if a.firstEnabled == "" {
		a.firstEnabled = canonicalID
	}
}

// resolve maps any known alias to its canonical id. The second return is
// false when the alias is unknown or the resolved model is not enabled.
func (a *modelAliases) resolve(alias string) (string, bool) {
	id, ok := a.byAlias[aliasKey(alias)]
	if !ok {
		return "", false
	}
	if _, enabled := a.enabled[id]; !enabled {
		return "", false
	}
	return id, true
}

func aliasKey(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}
