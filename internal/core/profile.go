package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// RequiredFields are the semantic columns every roster must provide.
var RequiredFields = []string{FieldDate, FieldShiftType, FieldExpectedCount}

// Shift-type match modes.
const (
	MatchNormalized = "normalized" // trim + upper-case before synonym lookup
	MatchExact      = "exact"      // the raw cell must equal a label or synonym
)

// Worker-name case policies.
const (
	CaseUpper = "upper"
	CaseLower = "lower"
	CaseTitle = "title"
	CaseNone  = "none"
)

// DefaultHeaderThreshold is the header-likelihood score a row must reach.
const DefaultHeaderThreshold = 20

// Profile is a named bundle of header synonyms, shift-type synonyms,
// correction policy and validation thresholds. Registered profiles are shared
// between concurrent runs and must be treated as read-only.
type Profile struct {
	Name             string           `yaml:"name" toml:"name" json:"name"`
	Version          string           `yaml:"version" toml:"version" json:"version"`
	Description      string           `yaml:"description,omitempty" toml:"description,omitempty" json:"description,omitempty"`
	Headers          HeaderConfig     `yaml:"headers" toml:"headers" json:"headers"`
	Structure        StructureConfig  `yaml:"structure" toml:"structure" json:"structure"`
	ShiftTypes       ShiftTypeConfig  `yaml:"shiftTypes" toml:"shiftTypes" json:"shiftTypes"`
	CancelledMarkers []string         `yaml:"cancelledMarkers" toml:"cancelledMarkers" json:"cancelledMarkers"`
	WorkerNames      WorkerNameConfig `yaml:"workerNames" toml:"workerNames" json:"workerNames"`
	Quantity         QuantityConfig   `yaml:"quantity" toml:"quantity" json:"quantity"`
	Dates            DateConfig       `yaml:"dates" toml:"dates" json:"dates"`
	Validation       ValidationConfig `yaml:"validation" toml:"validation" json:"validation"`

	compiled *profileIndex
}

// HeaderConfig lists the header wording a profile recognises.
type HeaderConfig struct {
	Required    []string            `yaml:"required" toml:"required" json:"required"`
	Synonyms    map[string][]string `yaml:"synonyms" toml:"synonyms" json:"synonyms"`
	WorkerSlots []string            `yaml:"workerSlots" toml:"workerSlots" json:"workerSlots"`
	ExtraSlots  []string            `yaml:"extraSlots,omitempty" toml:"extraSlots,omitempty" json:"extraSlots,omitempty"`
	Optional    map[string][]string `yaml:"optional,omitempty" toml:"optional,omitempty" json:"optional,omitempty"`
}

// StructureConfig tunes header and trailer detection.
type StructureConfig struct {
	MaxHeaderRow         int      `yaml:"maxHeaderRow" toml:"maxHeaderRow" json:"maxHeaderRow"`
	HeaderThreshold      int      `yaml:"headerThreshold" toml:"headerThreshold" json:"headerThreshold"`
	TotalMarkers         []string `yaml:"totalMarkers" toml:"totalMarkers" json:"totalMarkers"`
	NoCoverageMarkers    []string `yaml:"noCoverageMarkers" toml:"noCoverageMarkers" json:"noCoverageMarkers"`
	SummaryLineMinLength int      `yaml:"summaryLineMinLength" toml:"summaryLineMinLength" json:"summaryLineMinLength"`
}

// ShiftTypeConfig holds the canonical shift labels in priority order.
type ShiftTypeConfig struct {
	Match string      `yaml:"match" toml:"match" json:"match"`
	Types []ShiftType `yaml:"types" toml:"types" json:"types"`
}

// ShiftType is one canonical label and the spellings that map to it.
type ShiftType struct {
	Label    string   `yaml:"label" toml:"label" json:"label"`
	Synonyms []string `yaml:"synonyms" toml:"synonyms" json:"synonyms"`
}

// WorkerNameConfig constrains and normalises worker-name cells.
type WorkerNameConfig struct {
	MinLength      int               `yaml:"minLength" toml:"minLength" json:"minLength"`
	MaxLength      int               `yaml:"maxLength" toml:"maxLength" json:"maxLength"`
	AllowedPattern string            `yaml:"allowedPattern" toml:"allowedPattern" json:"allowedPattern"`
	Substitutions  map[string]string `yaml:"substitutions,omitempty" toml:"substitutions,omitempty" json:"substitutions,omitempty"`
	InvalidMarkers []string          `yaml:"invalidMarkers" toml:"invalidMarkers" json:"invalidMarkers"`
	TrimSpaces     bool              `yaml:"trimSpaces" toml:"trimSpaces" json:"trimSpaces"`
	CollapseSpaces bool              `yaml:"collapseSpaces" toml:"collapseSpaces" json:"collapseSpaces"`
	Case           string            `yaml:"case" toml:"case" json:"case"`
}

// QuantityConfig bounds the expected worker count of a shift.
type QuantityConfig struct {
	Min int `yaml:"min" toml:"min" json:"min"`
	Max int `yaml:"max" toml:"max" json:"max"`
}

// DateConfig controls date repair and plausibility checks.
type DateConfig struct {
	FillMissing bool `yaml:"fillMissing" toml:"fillMissing" json:"fillMissing"`
	DayFirst    bool `yaml:"dayFirst" toml:"dayFirst" json:"dayFirst"`
	MinYear     int  `yaml:"minYear" toml:"minYear" json:"minYear"`
	MaxYear     int  `yaml:"maxYear" toml:"maxYear" json:"maxYear"`
}

// ValidationConfig is the validation policy record of a profile.
type ValidationConfig struct {
	StrictMode       bool `yaml:"strictMode" toml:"strictMode" json:"strictMode"`
	AllowPartialData bool `yaml:"allowPartialData" toml:"allowPartialData" json:"allowPartialData"`
	MaxWarnings      int  `yaml:"maxWarnings" toml:"maxWarnings" json:"maxWarnings"`
	RequireTotals    bool `yaml:"requireTotals" toml:"requireTotals" json:"requireTotals"`
	AutoCorrection   bool `yaml:"autoCorrection" toml:"autoCorrection" json:"autoCorrection"`
}

// InvalidProfileError lists every section a profile is missing or gets wrong.
type InvalidProfileError struct {
	Name     string
	Missing  []string
	Problems []string
}

func (e *InvalidProfileError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return fmt.Sprintf("invalid profile %q: %s", e.Name, strings.Join(parts, "; "))
}

// Validate checks the structural completeness of the profile.
// Returns an *InvalidProfileError naming every problem at once.
func (p *Profile) Validate() error {
	inv := &InvalidProfileError{Name: p.Name}

	if strings.TrimSpace(p.Name) == "" {
		inv.Missing = append(inv.Missing, "name")
	}

	required := make(map[string]bool)
	for _, f := range p.Headers.Required {
		required[f] = true
	}
	for _, f := range RequiredFields {
		if !required[f] {
			inv.Missing = append(inv.Missing, "headers.required."+f)
		}
	}
	for _, f := range p.Headers.Required {
		if len(nonBlank(p.Headers.Synonyms[f])) == 0 {
			inv.Missing = append(inv.Missing, "headers.synonyms."+f)
		}
	}
	if len(nonBlank(p.Headers.WorkerSlots)) == 0 {
		inv.Missing = append(inv.Missing, "headers.workerSlots")
	}

	labels := 0
	owner := make(map[string]string)
	for _, st := range p.ShiftTypes.Types {
		if strings.TrimSpace(st.Label) == "" {
			continue
		}
		labels++
		for _, syn := range append([]string{st.Label}, st.Synonyms...) {
			key := p.shiftKey(syn)
			if key == "" {
				continue
			}
			if prev, ok := owner[key]; ok && prev != st.Label {
				inv.Problems = append(inv.Problems,
					fmt.Sprintf("shift-type synonym %q is claimed by both %q and %q", syn, prev, st.Label))
				continue
			}
			owner[key] = st.Label
		}
	}
	if labels == 0 {
		inv.Missing = append(inv.Missing, "shiftTypes.types")
	}
	if m := p.ShiftTypes.Match; m != "" && m != MatchNormalized && m != MatchExact {
		inv.Problems = append(inv.Problems, fmt.Sprintf("shiftTypes.match %q must be %s or %s", m, MatchNormalized, MatchExact))
	}

	wn := p.WorkerNames
	if wn.MinLength <= 0 && wn.MaxLength <= 0 && strings.TrimSpace(wn.AllowedPattern) == "" {
		inv.Missing = append(inv.Missing, "workerNames constraints")
	}
	if wn.AllowedPattern != "" {
		if _, err := regexp.Compile(wn.AllowedPattern); err != nil {
			inv.Problems = append(inv.Problems, fmt.Sprintf("workerNames.allowedPattern: %v", err))
		}
	}
	if wn.MaxLength > 0 && wn.MinLength > wn.MaxLength {
		inv.Problems = append(inv.Problems, "workerNames.minLength exceeds maxLength")
	}
	switch wn.Case {
	case "", CaseUpper, CaseLower, CaseTitle, CaseNone:
	default:
		inv.Problems = append(inv.Problems, fmt.Sprintf("workerNames.case %q is not one of upper, lower, title, none", wn.Case))
	}

	if p.Quantity.Min < 0 || p.Quantity.Max < p.Quantity.Min {
		inv.Problems = append(inv.Problems,
			fmt.Sprintf("quantity bounds [%d, %d] are not a valid non-negative range", p.Quantity.Min, p.Quantity.Max))
	}
	if p.Validation.MaxWarnings < 0 {
		inv.Problems = append(inv.Problems, "validation.maxWarnings must be >= 0")
	}

	if len(inv.Missing) > 0 || len(inv.Problems) > 0 {
		return errors.WithHint(inv, "complete the listed profile sections before registering it")
	}
	return nil
}

// Clone returns a deep copy of the profile, detached from any registry.
func (p *Profile) Clone() (*Profile, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, "clone profile")
	}
	var out Profile
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "clone profile")
	}
	return &out, nil
}

// HeaderThreshold returns the score a header row must reach.
func (p *Profile) HeaderThreshold() int {
	if p.Structure.HeaderThreshold > 0 {
		return p.Structure.HeaderThreshold
	}
	return DefaultHeaderThreshold
}

// MaxHeaderRow returns how many leading rows are inspected for the header.
func (p *Profile) MaxHeaderRow() int {
	if p.Structure.MaxHeaderRow > 0 {
		return p.Structure.MaxHeaderRow
	}
	return 10
}

// ShiftLabels returns the canonical shift-type labels in priority order.
func (p *Profile) ShiftLabels() []string {
	labels := make([]string, 0, len(p.ShiftTypes.Types))
	for _, st := range p.ShiftTypes.Types {
		labels = append(labels, st.Label)
	}
	return labels
}

func (p *Profile) exactShiftMatch() bool {
	return p.ShiftTypes.Match == MatchExact
}

func (p *Profile) shiftKey(s string) string {
	if p.exactShiftMatch() {
		return s
	}
	return NormalizeToken(s)
}

// ResolveShiftType maps a cell value to its canonical label using the
// profile's match mode. The first label whose synonyms match wins.
func (p *Profile) ResolveShiftType(value string) (string, bool) {
	label, ok := p.index().shifts[p.shiftKey(value)]
	return label, ok
}

// IsCancelled reports whether value is one of the profile's cancellation markers.
func (p *Profile) IsCancelled(value string) bool {
	key := NormalizeToken(value)
	return key != "" && p.index().cancelled[key]
}

// isInvalidName reports whether a worker cell holds a placeholder rather than a name.
func (p *Profile) isInvalidName(value string) bool {
	key := NormalizeToken(value)
	return key == "" || p.index().invalidNames[key] || p.index().cancelled[key]
}

// profileIndex holds lookup tables derived from a profile. It is built when
// the profile is registered so that shared profiles are never written to.
type profileIndex struct {
	fieldSyn     map[string]map[string]bool // field -> normalized synonyms
	optionalSyn  map[string]map[string]bool
	slotSyn      map[string]bool
	extraSyn     map[string]bool
	shifts       map[string]string
	cancelled    map[string]bool
	invalidNames map[string]bool
	namePattern  *regexp.Regexp
	substitutes  []substitution
	totals       []string
	noCoverage   []string
}

type substitution struct {
	from []string // upper-cased tokens
	to   string
}

func (p *Profile) index() *profileIndex {
	if p.compiled == nil {
		p.compiled = buildIndex(p)
	}
	return p.compiled
}

func buildIndex(p *Profile) *profileIndex {
	idx := &profileIndex{
		fieldSyn:     make(map[string]map[string]bool),
		optionalSyn:  make(map[string]map[string]bool),
		slotSyn:      tokenSet(p.Headers.WorkerSlots),
		extraSyn:     tokenSet(p.Headers.ExtraSlots),
		shifts:       make(map[string]string),
		cancelled:    tokenSet(p.CancelledMarkers),
		invalidNames: tokenSet(p.WorkerNames.InvalidMarkers),
	}
	for _, f := range p.Headers.Required {
		idx.fieldSyn[f] = tokenSet(p.Headers.Synonyms[f])
	}
	for f, syns := range p.Headers.Optional {
		idx.optionalSyn[f] = tokenSet(syns)
	}
	for _, st := range p.ShiftTypes.Types {
		for _, syn := range append([]string{st.Label}, st.Synonyms...) {
			key := p.shiftKey(syn)
			if _, taken := idx.shifts[key]; key != "" && !taken {
				idx.shifts[key] = st.Label
			}
		}
	}
	if p.WorkerNames.AllowedPattern != "" {
		idx.namePattern, _ = regexp.Compile(p.WorkerNames.AllowedPattern)
	}
	for from, to := range p.WorkerNames.Substitutions {
		tokens := strings.Fields(strings.ToUpper(from))
		if len(tokens) == 0 {
			continue
		}
		idx.substitutes = append(idx.substitutes, substitution{from: tokens, to: to})
	}
	// Longer keys first so "JUAN PERES" beats "PERES".
	sort.Slice(idx.substitutes, func(i, j int) bool {
		a, b := idx.substitutes[i], idx.substitutes[j]
		if len(a.from) != len(b.from) {
			return len(a.from) > len(b.from)
		}
		return strings.Join(a.from, " ") < strings.Join(b.from, " ")
	})
	for _, m := range p.Structure.TotalMarkers {
		if k := NormalizeToken(m); k != "" {
			idx.totals = append(idx.totals, k)
		}
	}
	for _, m := range p.Structure.NoCoverageMarkers {
		if k := NormalizeToken(m); k != "" {
			idx.noCoverage = append(idx.noCoverage, k)
		}
	}
	return idx
}

func tokenSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if k := NormalizeToken(v); k != "" {
			set[k] = true
		}
	}
	return set
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
