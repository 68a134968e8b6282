package chunk

import (
	"strings"

	"github.com/locus-dev/locus/internal/parser"
)

// kindWeights is the fixed structural weight table. Public API surface
// ranks highest; generated docs and module preambles lowest.
var kindWeights = map[parser.ElementKind]float64{
	parser.KindFunction: 1.00,
	parser.KindClass:    1.00,
	parser.KindStruct:   0.95,
	parser.KindTrait:    0.95,
	parser.KindType:     0.95,
	parser.KindConst:    0.90,
	parser.KindImpl:     0.85,
	parser.KindOther:    0.70,
	parser.KindTest:     0.60,
	parser.KindModule:   0.50,
}

// errorKindWeight applies to declarations that define error values/types.
const errorKindWeight = 0.90

// visibilityWeights scales by reachability.
var visibilityWeights = map[parser.Visibility]float64{
	parser.VisibilityPublic:  1.00,
	parser.VisibilityCrate:   0.85,
	parser.VisibilityPrivate: 0.70,
}

// Weight computes the structural weight for an element: kind weight times
// visibility weight, clamped to [0,1].
func Weight(kind parser.ElementKind, visibility parser.Visibility, name string) float64 {
	kw, ok := kindWeights[kind]
	if !ok {
		kw = kindWeights[parser.KindOther]
	}

	if isErrorName(name) && kw > errorKindWeight {
		kw = errorKindWeight
	}

	vw, ok := visibilityWeights[visibility]
	if !ok {
		vw = visibilityWeights[parser.VisibilityPrivate]
	}

	w := kw * vw
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// isErrorName reports declarations following error naming conventions.
func isErrorName(name string) bool {
	if name == "" {
		return false
	}
	return strings.HasSuffix(name, "Error") || strings.HasSuffix(name, "Err") ||
		strings.HasPrefix(name, "Err") || strings.HasSuffix(name, "Exception")
}
