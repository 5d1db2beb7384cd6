package structured

// maxNormalizePasses bounds the fixpoint loop. Every rule either removes a
// node, removes a non-canonical key or moves a value to its canonical form,
// so real documents settle in two or three passes.
const maxNormalizePasses = 16

// Normalizer applies an ordered battery of repair rules to a parsed document.
//
// Default order: envelope unwrap, field rename, null-optional pruning, enum
// scalar coercion, shape coercion, nested-example repair, enum-array filtering.
// Root rules run on the document; object rules run on every object node the
// schema describes. The battery is repeated until a pass changes nothing, so
// Normalize(Normalize(D)) == Normalize(D) and the second call records no steps.
type Normalizer struct {
	rootRules []RootRule
	rules     []Rule
}

// NewNormalizer creates a Normalizer with the default rule order.
// wrappers are extra envelope keys accepted around any root document.
func NewNormalizer(wrappers ...string) *Normalizer {
	return NewNormalizerWithRules(
		[]RootRule{EnvelopeUnwrap{Wrappers: wrappers}},
		[]Rule{FieldRename{}, NullPrune{}, EnumCoerce{}, ShapeCoerce{}, ExampleRepair{}, EnumFilter{}},
	)
}

// NewNormalizerWithRules creates a Normalizer with a custom rule set.
func NewNormalizerWithRules(rootRules []RootRule, rules []Rule) *Normalizer {
	return &Normalizer{rootRules: rootRules, rules: rules}
}

// RuleNames lists the configured rules in application order.
func (n *Normalizer) RuleNames() []string {
	names := make([]string, 0, len(n.rootRules)+len(n.rules))
	for _, r := range n.rootRules {
		names = append(names, r.Name())
	}
	for _, r := range n.rules {
		names = append(names, r.Name())
	}
	return names
}

// Normalize repairs doc in place and returns the (possibly replaced) root
// together with the steps applied. It never fails: unrepairable content is
// left for the validator.
func (n *Normalizer) Normalize(doc *Node, schema *Schema) (*Node, []NormalizationStep) {
	if doc == nil {
		doc = NewNull()
	}
	if schema == nil {
		return doc, nil
	}
	log := &StepLog{}
	for pass := 0; pass < maxNormalizePasses; pass++ {
		before := log.Len()
		for _, r := range n.rootRules {
			doc = r.ApplyRoot(doc, schema, log)
		}
		n.walk(doc, schema, "", log)
		if log.Len() == before {
			break
		}
	}
	return doc, log.Steps()
}

func (n *Normalizer) walk(node *Node, schema *Schema, path string, log *StepLog) {
	if schema == nil {
		return
	}
	switch schema.Type {
	case TypeObject:
		if !node.IsObject() {
			return
		}
		for _, r := range n.rules {
			r.Apply(node, schema, path, log)
		}
		for _, p := range schema.Properties {
			if v, ok := node.Get(p.Name); ok {
				n.walk(v, p.Schema, joinPath(path, p.Name), log)
			}
		}
	case TypeArray:
		if !node.IsArray() {
			return
		}
		for i, it := range node.Items() {
			n.walk(it, schema.Items, indexPath(path, i), log)
		}
	}
}
