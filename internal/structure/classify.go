// Package structure classifies a document's nesting so normalization can pick
// a processing route.
package structure

import "docnorm/internal/document"

// RootName is the root-array path reported when the collection sits at the
// document root (or directly under an unwrapped envelope).
const RootName = "root"

// NestedArray describes one collection found below the root.
type NestedArray struct {
	Path       string `json:"path"`
	ParentPath string `json:"parent_path"`
	Name       string `json:"name"`
	Depth      int    `json:"depth"`
}

// Analysis is the result of Classify.
type Analysis struct {
	// HasMultipleNestedArrays is set when some element (or object) exposes more
	// than one sibling collection.
	HasMultipleNestedArrays bool `json:"has_multiple_nested_arrays"`

	// RootArray is the path of the collection the analysis started from, or ""
	// when the analyzed value is not a collection.
	RootArray string `json:"root_array,omitempty"`

	NestedArrays []NestedArray `json:"nested_arrays"`
}

// Classify inspects n and reports its collection layout.
//
// A single-key envelope at the root is skipped when its value is, or
// transitively contains, a collection ({"Items": {...}}). Then:
//   - Collection: only the first element is inspected. A property counts as a
//     sibling collection when it is a collection or an object with at least one
//     collection-valued member (a single-key wrapper is one such object). More
//     than one sets the flag. Nested findings of the first element are
//     collected but their flags are not propagated.
//   - Object: more than one direct collection-valued property sets the flag.
//     Nested objects and collections are analyzed recursively and their flags
//     propagate.
//
// Classify is pure; calling it twice on the same document yields equal results.
func Classify(n *document.Node) Analysis {
	return analyze(n, "", 0)
}

func analyze(n *document.Node, path string, depth int) Analysis {
	res := Analysis{NestedArrays: []NestedArray{}}

	v := n
	if path == "" {
		v, _ = document.UnwrapEnvelope(n)
	}

	switch v.Kind() {
	case document.KindCollection:
		res.RootArray = path
		if res.RootArray == "" {
			res.RootArray = RootName
		}
		items := v.Items()
		if len(items) == 0 || !items[0].IsObject() {
			return res
		}
		first := items[0]
		if siblingCollections(first) > 1 {
			res.HasMultipleNestedArrays = true
		}
		for _, f := range first.Fields() {
			if f.Value.IsScalar() {
				continue
			}
			child := analyze(f.Value, f.Key, depth+1)
			res.NestedArrays = append(res.NestedArrays, child.NestedArrays...)
			if f.Value.IsCollection() {
				res.NestedArrays = append(res.NestedArrays, NestedArray{
					Path:       f.Key,
					ParentPath: parentPath(path),
					Name:       f.Key,
					Depth:      depth + 1,
				})
			}
		}

	case document.KindObject:
		if len(document.DirectCollections(v)) > 1 {
			res.HasMultipleNestedArrays = true
		}
		for _, f := range v.Fields() {
			if f.Value.IsScalar() {
				continue
			}
			childPath := f.Key
			if path != "" {
				childPath = path + "." + f.Key
			}
			child := analyze(f.Value, childPath, depth+1)
			if child.HasMultipleNestedArrays {
				res.HasMultipleNestedArrays = true
			}
			res.NestedArrays = append(res.NestedArrays, child.NestedArrays...)
			if child.RootArray != "" {
				res.NestedArrays = append(res.NestedArrays, NestedArray{
					Path:       childPath,
					ParentPath: parentPath(path),
					Name:       f.Key,
					Depth:      depth + 1,
				})
			}
		}
	}
	return res
}

// siblingCollections counts the properties of an element that are, or directly
// hold, a collection.
func siblingCollections(elem *document.Node) int {
	count := 0
	for _, f := range elem.Fields() {
		switch {
		case f.Value.IsCollection():
			count++
		case f.Value.IsObject() && len(document.DirectCollections(f.Value)) > 0:
			count++
		}
	}
	return count
}

func parentPath(path string) string {
	if path == "" {
		return RootName
	}
	return path
}
