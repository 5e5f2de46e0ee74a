package fusion

import (
	"github.com/kailas-cloud/retrio/internal/domain/meta"
	"github.com/kailas-cloud/retrio/internal/domain/ranked"
)

// facetsOf aggregates counts over the full above-threshold set, not just the
// returned page, so filter UIs reflect the matching population.
func facetsOf(matched []*merged) ranked.Facets {
	f := ranked.NewFacets()
	for _, m := range matched {
		f.Types[string(m.repr.ContentType())]++

		if v, ok := m.metadata[meta.KeySource]; ok {
			if s, isStr := v.Str(); isStr && s != "" {
				f.Sources[s]++
			}
		}
		if v, ok := m.metadata[meta.KeyCategory]; ok {
			if s, isStr := v.Str(); isStr && s != "" {
				f.Categories[s]++
			}
		}
		if v, ok := m.metadata[meta.KeyTags]; ok {
			if list, isList := v.List(); isList {
				for _, tag := range list {
					if tag != "" {
						f.Tags[tag]++
					}
				}
			}
		}
		if v, ok := m.metadata[meta.KeyPublished]; ok {
			if ts, isTime := v.Time(); isTime && !ts.IsZero() {
				f.Dates[ts.UTC().Format("2006-01")]++
			}
		}
	}
	return f
}
