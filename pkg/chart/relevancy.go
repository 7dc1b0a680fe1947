package chart

import "github.com/choraleia/analyst/pkg/models"

// ComputeRelevancy picks marker positions from the first dataset: primary is
// the largest value and secondary the largest of the rest, ties going to the
// lowest index. Secondary is nil when there is only one label.
func ComputeRelevancy(values []float64) (primary, secondary *int) {
	if len(values) == 0 {
		return nil, nil
	}
	p := argmax(values, -1)
	primary = &p
	if len(values) > 1 {
		s := argmax(values, p)
		secondary = &s
	}
	return primary, secondary
}

// argmax returns the index of the largest value, skipping index skip.
func argmax(values []float64, skip int) int {
	best := -1
	for i, v := range values {
		if i == skip {
			continue
		}
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

// applyMarkers resolves model-given markers and fills any missing ones.
func applyMarkers(spec *models.ChartSpec, primary, secondary *marker) error {
	p, err := resolveMarker("primary", primary, spec.Labels)
	if err != nil {
		return err
	}
	s, err := resolveMarker("secondary", secondary, spec.Labels)
	if err != nil {
		return err
	}
	if p != nil && s != nil && *p == *s {
		return invalidf("primary and secondary markers both point at %q", spec.Labels[*p])
	}

	values := spec.Datasets[0].Data
	switch {
	case p == nil && s == nil:
		p, s = ComputeRelevancy(values)
		spec.MarkersComputed = true
	case p == nil:
		idx := argmax(values, *s)
		if idx >= 0 {
			p = &idx
		}
		spec.MarkersComputed = true
	case s == nil && len(values) > 1:
		idx := argmax(values, *p)
		s = &idx
		spec.MarkersComputed = true
	}
	spec.Primary, spec.Secondary = p, s
	return nil
}

func resolveMarker(name string, m *marker, labels []string) (*int, error) {
	if m == nil {
		return nil, nil
	}
	if m.Index != nil {
		if *m.Index < 0 || *m.Index >= len(labels) {
			return nil, invalidf("%s marker %d is out of range for %d labels", name, *m.Index, len(labels))
		}
		idx := *m.Index
		return &idx, nil
	}
	if m.Label != nil {
		for i, l := range labels {
			if l == *m.Label {
				idx := i
				return &idx, nil
			}
		}
		return nil, invalidf("%s marker %q is not one of the labels", name, *m.Label)
	}
	return nil, nil
}
