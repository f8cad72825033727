package graphstore

import "github.com/teranos/prism/graph"

// statement is one parameterised Cypher statement.
type statement struct {
	cypher string
	params map[string]any
}

const (
	// A node whose public id changed upstream keeps its edges
	renameNode = `MATCH (n:` + graph.NodeLabel + ` {id: $id}) WHERE n.public_id <> $key
SET n.public_id = $key`

	mergeNode = `MERGE (n:` + graph.NodeLabel + ` {public_id: $key})
SET n = $props`

	deleteNode = `MATCH (n:` + graph.NodeLabel + ` {id: $id})
DETACH DELETE n`

	deleteEdge = `MATCH ()-[r:` + graph.EdgeType + ` {id: $id}]->()
DELETE r`

	createEdge = `MERGE (a:` + graph.NodeLabel + ` {public_id: $from}) ON CREATE SET a = $from_props
MERGE (b:` + graph.NodeLabel + ` {public_id: $to}) ON CREATE SET b = $to_props
CREATE (a)-[r:` + graph.EdgeType + `]->(b)
SET r = $props`
)

// Secondary indexes on node and edge properties.
var (
	nodeIndexes = []string{"id", "type", "potentially_pep", "published", "deleted"}
	edgeIndexes = []string{"id", "type", "category", "potentially_pep_type", "published", "deleted",
		"a_public_id", "b_public_id", "a_potentially_pep", "b_potentially_pep"}
)

func nodeStatements(n graph.Node) []statement {
	return []statement{
		{cypher: renameNode, params: map[string]any{"id": n.Props["id"], "key": n.Key}},
		{cypher: mergeNode, params: map[string]any{"key": n.Key, "props": n.Props}},
	}
}

func edgeStatements(e graph.Edge, from, to graph.Node) []statement {
	return []statement{
		{cypher: deleteEdge, params: map[string]any{"id": e.ID}},
		{cypher: createEdge, params: map[string]any{
			"from":       e.From,
			"to":         e.To,
			"from_props": from.Props,
			"to_props":   to.Props,
			"props":      e.Props,
		}},
	}
}

func schemaStatements() []string {
	stmts := []string{
		`CREATE CONSTRAINT entity_public_id IF NOT EXISTS FOR (n:` + graph.NodeLabel + `) REQUIRE n.public_id IS UNIQUE`,
	}
	for _, p := range nodeIndexes {
		stmts = append(stmts, `CREATE INDEX entity_`+p+` IF NOT EXISTS FOR (n:`+graph.NodeLabel+`) ON (n.`+p+`)`)
	}
	for _, p := range edgeIndexes {
		stmts = append(stmts, `CREATE INDEX connection_`+p+` IF NOT EXISTS FOR ()-[r:`+graph.EdgeType+`]-() ON (r.`+p+`)`)
	}
	return stmts
}
