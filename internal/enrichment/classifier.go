package enrichment

import (
	"context"
	"strings"
	"unicode"

	"github.com/veriline/veriline-backend/pkg/enums"
)

type kindOracle interface {
	ClassifyKind(ctx context.Context, name, description string) (enums.ItemKind, float64, error)
}

// Classifier decides whether a catalog item is a consumable material or a
// durable piece of equipment. Keyword evidence decides outright; the oracle
// is consulted only for names whose tokens carry no signal, or conflicting
// signals, and any oracle failure falls back to material.
type Classifier struct {
	oracle kindOracle
}

func NewClassifier(oracle kindOracle) *Classifier {
	return &Classifier{oracle: oracle}
}

var equipmentTerms = termSet(
	"drill", "saw", "chainsaw", "compressor", "pump", "motor", "generator",
	"welder", "grinder", "sander", "ladder", "scaffold", "machine", "blower",
	"heater", "furnace", "vacuum", "mower", "trimmer", "edger", "sprayer",
	"tester", "meter", "multimeter", "gauge", "analyzer", "hoist", "winch",
	"jack", "torch", "crimper", "wrench", "hammer", "screwdriver", "pliers",
	"dolly", "toolkit",
)

var materialTerms = termSet(
	"pipe", "fitting", "elbow", "tee", "coupling", "flange", "gasket",
	"sealant", "caulk", "adhesive", "tape", "wire", "cable", "conduit",
	"breaker", "screw", "bolt", "nut", "anchor", "fastener", "filter",
	"belt", "blade", "bit", "paint", "primer", "lumber", "plywood",
	"drywall", "insulation", "duct", "grease", "lubricant", "cement",
	"concrete", "mortar", "grout", "tile", "shingle", "solder", "flux",
	"refrigerant", "ballast", "bulb", "lamp", "fuse", "valve", "tubing",
	"tube", "rod",
)

func termSet(terms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		set[term] = struct{}{}
	}
	return set
}

// Classify names the kind for a catalog item. It never fails; ambiguity
// resolves to material, the overwhelmingly common case on invoices.
func (c *Classifier) Classify(ctx context.Context, name string) enums.ItemKind {
	equipment, material := keywordEvidence(name)
	switch {
	case equipment && !material:
		return enums.ItemKindEquipment
	case material && !equipment:
		return enums.ItemKindMaterial
	}

	if c != nil && c.oracle != nil {
		if kind, _, err := c.oracle.ClassifyKind(ctx, name, ""); err == nil && kind.IsValid() {
			return kind
		}
	}
	return enums.ItemKindMaterial
}

func keywordEvidence(name string) (equipment, material bool) {
	tokens := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, token := range tokens {
		if matchesTerm(equipmentTerms, token) {
			equipment = true
		}
		if matchesTerm(materialTerms, token) {
			material = true
		}
	}
	return equipment, material
}

// matchesTerm folds plain plurals so "filters" hits "filter".
func matchesTerm(terms map[string]struct{}, token string) bool {
	if _, ok := terms[token]; ok {
		return true
	}
	if strings.HasSuffix(token, "s") {
		if _, ok := terms[strings.TrimSuffix(token, "s")]; ok {
			return true
		}
	}
	return false
}
