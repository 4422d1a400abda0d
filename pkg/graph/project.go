package graph

import (
	"slices"

	"github.com/kinship-crm/kinship/pkg/common"
)

// ProjectInput is everything needed to derive a graph projection.
type ProjectInput struct {
	Persons       []common.Person
	Relationships []common.Relationship
	Types         []common.RelationshipType
	Avatars       map[int64]string
	// Center limits the projection to persons within Depth hops of it.
	Center *int64
	Depth  int
}

// Project derives the read-only graph projection. An auto-created record
// whose manual partner is also present is dropped, since the pair is one
// edge in the picture. Relationships touching persons outside the
// projection are dropped as well.
func Project(in ProjectInput) common.GraphProjection {
	types := make(map[int64]common.RelationshipType, len(in.Types))
	for _, t := range in.Types {
		types[t.ID] = t
	}
	present := make(map[int64]struct{}, len(in.Relationships))
	for _, r := range in.Relationships {
		present[r.ID] = struct{}{}
	}

	edges := make([]common.Relationship, 0, len(in.Relationships))
	for _, r := range in.Relationships {
		if r.AutoCreated && r.InverseID != nil {
			if _, ok := present[*r.InverseID]; ok {
				continue
			}
		}
		edges = append(edges, r)
	}

	keep := map[int64]struct{}{}
	if in.Center != nil {
		keep = reachable(*in.Center, edges, in.Depth)
	} else {
		for _, p := range in.Persons {
			keep[p.ID] = struct{}{}
		}
	}

	out := common.GraphProjection{
		Nodes:             []common.GraphNode{},
		Edges:             []common.GraphEdge{},
		RelationshipTypes: []common.RelationshipType{},
	}

	persons := slices.Clone(in.Persons)
	slices.SortFunc(persons, func(a, b common.Person) int { return compareID(a.ID, b.ID) })
	nodeIDs := map[int64]struct{}{}
	for _, p := range persons {
		if _, ok := keep[p.ID]; !ok {
			continue
		}
		nodeIDs[p.ID] = struct{}{}
		out.Nodes = append(out.Nodes, common.GraphNode{
			ID:     p.ID,
			Label:  p.FullName(),
			Avatar: in.Avatars[p.ID],
		})
	}

	usedTypes := map[int64]struct{}{}
	for _, r := range edges {
		_, okA := nodeIDs[r.PersonAID]
		_, okB := nodeIDs[r.PersonBID]
		if !okA || !okB {
			continue
		}
		t := types[r.RelationshipTypeID]
		usedTypes[t.ID] = struct{}{}
		out.Edges = append(out.Edges, common.GraphEdge{
			ID:                 r.ID,
			Source:             r.PersonAID,
			Target:             r.PersonBID,
			RelationshipTypeID: r.RelationshipTypeID,
			Label:              t.Name,
			Category:           t.Category,
			Strength:           r.Strength,
			IsSymmetric:        t.IsSymmetric,
		})
	}

	for _, t := range in.Types {
		if _, ok := usedTypes[t.ID]; ok {
			out.RelationshipTypes = append(out.RelationshipTypes, t)
		}
	}

	if in.Center != nil {
		if _, ok := nodeIDs[*in.Center]; ok {
			id := *in.Center
			out.CenterPersonID = &id
		}
	}
	return out
}

// reachable runs a breadth-first walk over undirected edges. depth <= 0
// means unlimited.
func reachable(center int64, edges []common.Relationship, depth int) map[int64]struct{} {
	adj := map[int64][]int64{}
	for _, r := range edges {
		adj[r.PersonAID] = append(adj[r.PersonAID], r.PersonBID)
		adj[r.PersonBID] = append(adj[r.PersonBID], r.PersonAID)
	}

	seen := map[int64]struct{}{center: {}}
	frontier := []int64{center}
	for level := 0; len(frontier) > 0 && (depth <= 0 || level < depth); level++ {
		var next []int64
		for _, id := range frontier {
			for _, n := range adj[id] {
				if _, ok := seen[n]; ok {
					continue
				}
				seen[n] = struct{}{}
				next = append(next, n)
			}
		}
		frontier = next
	}
	return seen
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
