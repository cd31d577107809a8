package core

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultProfileName is the fallback returned by Get for unknown names.
const DefaultProfileName = "default"

// ErrProfileExists is returned when registering a name twice.
var ErrProfileExists = errors.New("profile already registered")

// ErrProfileNotFound is returned when neither the requested profile nor the
// fallback profile is registered.
var ErrProfileNotFound = errors.New("profile not found")

// Registry holds named profiles. It is safe for concurrent use; registration
// should finish before runs start, reads may happen from any goroutine.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

// Register validates the profile and stores a private copy under name.
func (r *Registry) Register(name string, p *Profile) error {
	if p == nil {
		return errors.Newf("register %q: nil profile", name)
	}
	stored, err := p.Clone()
	if err != nil {
		return errors.Wrapf(err, "register %q", name)
	}
	stored.Name = name
	if err := stored.Validate(); err != nil {
		return err
	}
	stored.compiled = buildIndex(stored)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[name]; exists {
		return errors.Wrapf(ErrProfileExists, "register %q", name)
	}
	r.profiles[name] = stored
	r.order = append(r.order, name)
	return nil
}

// Get returns the named profile, or the default profile when name is empty
// or unknown. The returned profile is shared and must not be modified.
func (r *Registry) Get(name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	if p, ok := r.profiles[DefaultProfileName]; ok {
		return p, nil
	}
	return nil, errors.WithHint(
		errors.Wrapf(ErrProfileNotFound, "profile %q", name),
		"register the built-in profiles before running imports")
}

// Lookup returns the named profile without falling back.
func (r *Registry) Lookup(name string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Names returns the registered profile names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns the registered profiles in registration order.
func (r *Registry) All() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Profile, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.profiles[name])
	}
	return out
}

// Count returns the number of registered profiles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

// DeriveProfile deep-merges overrides onto a copy of the base profile and
// registers the result under newName. Nested objects merge recursively;
// arrays and scalars replace. Override keys use the profile's YAML names.
func (r *Registry) DeriveProfile(baseName string, overrides map[string]any, newName string) (*Profile, error) {
	base, ok := r.Lookup(baseName)
	if !ok {
		return nil, errors.WithHint(
			errors.Wrapf(ErrProfileNotFound, "derive %q from %q", newName, baseName),
			"the base profile must be registered before profiles derived from it")
	}

	derived, err := mergeProfile(base, overrides)
	if err != nil {
		return nil, errors.Wrapf(err, "derive %q from %q", newName, baseName)
	}
	if err := r.Register(newName, derived); err != nil {
		return nil, err
	}
	p, _ := r.Lookup(newName)
	return p, nil
}

// ProfileScore is the header-match score of one profile.
type ProfileScore struct {
	Profile string `json:"profile"`
	Score   int    `json:"score"`
}

// ScoreAgainstHeaderRow scores a header row against every registered profile:
// +10 per required field matched, +5 per worker-slot header, +3 per optional
// header. It returns the best profile name (first registered wins ties) and
// every score in registration order.
func (r *Registry) ScoreAgainstHeaderRow(row []Cell) (string, []ProfileScore) {
	profiles := r.All()

	best, bestScore := "", -1
	scores := make([]ProfileScore, 0, len(profiles))
	for _, p := range profiles {
		s := scoreRow(row, p, true)
		scores = append(scores, ProfileScore{Profile: p.Name, Score: s})
		if s > bestScore {
			best, bestScore = p.Name, s
		}
	}
	return best, scores
}

// SelectForGrid picks the profile that best explains the grid. Every row
// within the largest maxHeaderRow of the registered profiles is scored; the
// highest score wins and ties keep registration order. When nothing scores
// at all, the default profile is returned.
func (r *Registry) SelectForGrid(grid RawGrid) (*Profile, int, error) {
	profiles := r.All()

	var best *Profile
	bestScore := 0
	for _, p := range profiles {
		limit := min(p.MaxHeaderRow(), len(grid))
		for i := 0; i < limit; i++ {
			if s := scoreRow(grid[i], p, true); s > bestScore {
				best, bestScore = p, s
			}
		}
	}
	if best == nil {
		p, err := r.Get(DefaultProfileName)
		return p, 0, err
	}
	return best, bestScore, nil
}

// scoreRow computes the header likelihood of a row for a profile.
// Optional columns only count towards profile selection.
func scoreRow(row []Cell, p *Profile, withOptional bool) int {
	idx := p.index()
	tokens := rowTokens(row)

	score := 0
	for _, field := range p.Headers.Required {
		if anyTokenIn(tokens, idx.fieldSyn[field]) {
			score += 10
		}
	}
	for _, tok := range tokens {
		if isSlotHeader(tok, idx.slotSyn) || isSlotHeader(tok, idx.extraSyn) {
			score += 5
		}
	}
	if withOptional {
		for _, syns := range idx.optionalSyn {
			if anyTokenIn(tokens, syns) {
				score += 3
			}
		}
	}
	return score
}

func rowTokens(row []Cell) []string {
	tokens := make([]string, len(row))
	for i, c := range row {
		if c.Kind == CellText {
			tokens[i] = NormalizeToken(c.Str)
		}
	}
	return tokens
}

func anyTokenIn(tokens []string, set map[string]bool) bool {
	for _, tok := range tokens {
		if tok != "" && set[tok] {
			return true
		}
	}
	return false
}
