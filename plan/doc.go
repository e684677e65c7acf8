// Package plan defines the declarative workflow model: typed node
// definitions with hierarchical composition, directed edges with
// optional guard conditions, and the WorkflowPlan aggregate that owns
// graph validation, topological ordering, and effective error-strategy
// resolution. Plans serialize to a stable map/JSON/YAML shape that the
// repository layer persists as opaque blobs.
package plan
