// Package cache owns the persisted artifacts: the fixed blob keys, the cache
// artifact codec and a storage wrapper that maps driver failures onto the
// domain error taxonomy.
package cache

import "path"

// Fixed blob names inside the container.
const (
	RawName      = "All_Diets.csv"
	CleanedName  = "All_Diets_cleaned.csv"
	ArtifactName = "cached_results.json"
)

// DefaultContainer is the key prefix all artifacts live under.
const DefaultContainer = "datasets"

// Keys resolves the fixed names against a container prefix.
type Keys struct {
	Container string
}

// DefaultKeys returns keys under DefaultContainer.
func DefaultKeys() Keys { return Keys{Container: DefaultContainer} }

func (k Keys) join(name string) string {
	if k.Container == "" {
		return name
	}
	return path.Join(k.Container, name)
}

// Raw is the key of the uploaded source dataset.
func (k Keys) Raw() string { return k.join(RawName) }

// Cleaned is the key of the normalized dataset.
func (k Keys) Cleaned() string { return k.join(CleanedName) }

// Artifact is the key of the serialized view bundle.
func (k Keys) Artifact() string { return k.join(ArtifactName) }

// All lists the three keys.
func (k Keys) All() []string { return []string{k.Raw(), k.Cleaned(), k.Artifact()} }
