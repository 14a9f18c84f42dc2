package chatclient

import (
	"strings"
	"sync"
)

// Persona is a cosmetic, read-once-resolved label set describing which
// named variant of the kernel a model string maps to. Resolution is cached
// per model the way the original's persona overrides were a read-once cache.
type Persona struct {
	CentralName string
	Scale       string
	Variant     string
	ModelTarget string
}

var (
	personaMu    sync.Mutex
	personaCache = map[string]Persona{}
)

// ResolvePersona returns the cached Persona for model, computing and
// caching it on first use.
func ResolvePersona(model string) Persona {
	personaMu.Lock()
	defer personaMu.Unlock()

	if p, ok := personaCache[model]; ok {
		return p
	}
	p := computePersona(model)
	personaCache[model] = p
	return p
}

// ResetPersonaCache clears the cache, for tests that need to observe a
// fresh resolution.
func ResetPersonaCache() {
	personaMu.Lock()
	defer personaMu.Unlock()
	personaCache = map[string]Persona{}
}

func computePersona(model string) Persona {
	lower := strings.ToLower(model)
	scale := "nox"
	switch {
	case strings.Contains(lower, "nano"):
		scale = "nano"
	case strings.Contains(lower, "micro"):
		scale = "micro"
	case strings.Contains(lower, "milli"):
		scale = "milli"
	case strings.Contains(lower, "centi"):
		scale = "centi"
	}
	return Persona{
		CentralName: "Central",
		Scale:       scale,
		Variant:     model,
		ModelTarget: model,
	}
}
