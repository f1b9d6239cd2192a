package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionAny      Direction = "any"
)

// MaxTraversalDepth caps traversal regardless of what the caller asks
// for. Structure graphs are shallow; anything deeper walks extraction
// edges and fans out fast.
const MaxTraversalDepth = 5

// TraversalOptions configures Neighbors. Zero values mean depth 1, any
// direction, any relationship, no node type filter. A non-empty
// Relationships slice restricts the walk to those edge types.
type TraversalOptions struct {
	Depth         int
	Direction     Direction
	Relationships []string
	NodeType      NodeType
}

// Neighbor is a node reached by a traversal, annotated with the
// relationship of the edge that first reached it and the hop count from
// the start node.
type Neighbor struct {
	Node
	Relationship string
	Depth        int
}

// edgeHit is one end of a matched edge together with its relationship.
type edgeHit struct {
	key          string
	relationship string
}

// Neighbors walks the graph breadth-first from startKey up to the
// requested depth and returns every reachable node once, at the depth it
// was first reached, sorted by depth then key. The start node itself is
// not included. A start key with no edges, or one not present in the
// graph at all, yields an empty result.
func (e *Engine) Neighbors(ctx context.Context, startKey string, opts TraversalOptions) ([]Neighbor, error) {
	depth := opts.Depth
	if depth <= 0 {
		depth = 1
	}
	if depth > MaxTraversalDepth {
		depth = MaxTraversalDepth
	}
	direction := opts.Direction
	if direction == "" {
		direction = DirectionAny
	}

	type reach struct {
		relationship string
		depth        int
	}
	visited := map[string]reach{startKey: {}}
	frontier := []string{startKey}
	var reached []string

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		hits, err := e.adjacent(ctx, frontier, direction, opts.Relationships)
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, hit := range hits {
			if _, seen := visited[hit.key]; seen {
				continue
			}
			visited[hit.key] = reach{relationship: hit.relationship, depth: level}
			frontier = append(frontier, hit.key)
			reached = append(reached, hit.key)
		}
	}

	if len(reached) == 0 {
		return nil, nil
	}

	nodes, err := e.fetchNodes(ctx, reached, opts.NodeType)
	if err != nil {
		return nil, err
	}

	neighbors := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		r := visited[n.Key]
		neighbors = append(neighbors, Neighbor{Node: n, Relationship: r.relationship, Depth: r.depth})
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Depth != neighbors[j].Depth {
			return neighbors[i].Depth < neighbors[j].Depth
		}
		return neighbors[i].Key < neighbors[j].Key
	})
	return neighbors, nil
}

// adjacent returns the node keys one hop from the frontier in the given
// direction, each paired with the relationship of the edge that reached
// it, optionally restricted to a set of relationship types.
func (e *Engine) adjacent(ctx context.Context, frontier []string, direction Direction, relationships []string) ([]edgeHit, error) {
	var conditions []string
	args := []any{frontier}

	switch direction {
	case DirectionOutbound:
		conditions = append(conditions, "from_key = ANY($1)")
	case DirectionInbound:
		conditions = append(conditions, "to_key = ANY($1)")
	case DirectionAny:
		conditions = append(conditions, "(from_key = ANY($1) OR to_key = ANY($1))")
	default:
		return nil, fmt.Errorf("unknown traversal direction %q", direction)
	}

	if len(relationships) > 0 {
		conditions = append(conditions, fmt.Sprintf("relationship_type = ANY($%d)", len(args)+1))
		args = append(args, relationships)
	}

	query := "SELECT from_key, to_key, relationship_type FROM graph_edges WHERE " + conditions[0]
	for _, c := range conditions[1:] {
		query += " AND " + c
	}

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("traverse edges: %w", err)
	}
	defer rows.Close()

	inFrontier := make(map[string]struct{}, len(frontier))
	for _, key := range frontier {
		inFrontier[key] = struct{}{}
	}

	var next []edgeHit
	for rows.Next() {
		var from, to, rel string
		if err := rows.Scan(&from, &to, &rel); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		// For any-direction traversal an edge contributes whichever end
		// is not already on the frontier.
		if _, ok := inFrontier[from]; !ok {
			next = append(next, edgeHit{key: from, relationship: rel})
		}
		if _, ok := inFrontier[to]; !ok {
			next = append(next, edgeHit{key: to, relationship: rel})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return next, nil
}

// fetchNodes loads the given nodes, optionally filtered by type.
func (e *Engine) fetchNodes(ctx context.Context, keys []string, nodeType NodeType) ([]Node, error) {
	query := `SELECT key, node_type, external_id, name, metadata
FROM graph_nodes WHERE key = ANY($1)`
	args := []any{keys}
	if nodeType != "" {
		query += " AND node_type = $2"
		args = append(args, string(nodeType))
	}

	rows, err := e.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var (
			n            Node
			nodeTypeStr  string
			metadataJSON []byte
		)
		if err := rows.Scan(&n.Key, &nodeTypeStr, &n.ExternalID, &n.Name, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Type = NodeType(nodeTypeStr)
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &n.Metadata); err != nil {
				e.logger.Warn("failed to parse node metadata", "key", n.Key, "error", err)
			}
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}
