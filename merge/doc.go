// Package merge combines independently parsed PDF object graphs into a
// single graph with one catalog, one flat page tree, dense object numbers
// and an outline holding one bookmark per source document.
//
// The pipeline runs strictly forward:
//
//	Renumber -> collect -> select roots -> rebuild page tree ->
//	finalize catalog -> build outline -> Compact -> optimize -> Compact
//
// Source documents are never mutated; every stage works on copies owned by
// the merged document.
package merge
