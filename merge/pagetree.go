package merge

import "github.com/wudi/pdfmerge/ir/raw"

// rebuildPageTree hangs every pooled page directly under the surviving
// Pages dictionary, in pool order, and rewrites Kids and Count to match.
func rebuildPageTree(merged *raw.Document, pages entry, pool []pooledPage) {
	parent := raw.RefTo(pages.ref)
	kids := make([]raw.Object, 0, len(pool))
	for _, p := range pool {
		p.dict.Set(raw.NameLiteral("Parent"), parent)
		merged.Objects[p.ref] = p.dict
		kids = append(kids, raw.RefTo(p.ref))
	}
	pages.dict.Set(raw.NameLiteral("Kids"), raw.NewArray(kids...))
	pages.dict.Set(raw.NameLiteral("Count"), raw.NumberInt(int64(len(kids))))
	pages.dict.Delete("Parent")
	merged.Objects[pages.ref] = pages.dict
}
