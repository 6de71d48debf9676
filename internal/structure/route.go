package structure

import "docnorm/internal/document"

// Route names the engine that turns a document into tables.
type Route string

const (
	// RouteFlat: no collection anywhere; the leaves form a single row.
	RouteFlat Route = "flat"
	// RouteHierarchical: sibling collections; parent and child tables.
	RouteHierarchical Route = "hierarchical"
	// RouteGrouped: one collection path; rows fan out to the deepest array.
	RouteGrouped Route = "grouped"
)

func (r Route) String() string { return string(r) }

// RouteFor picks the processing route for n given its analysis.
func RouteFor(a Analysis, n *document.Node) Route {
	switch {
	case !document.ContainsCollection(n):
		return RouteFlat
	case a.HasMultipleNestedArrays:
		return RouteHierarchical
	default:
		return RouteGrouped
	}
}
