package rbac

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

// InheritanceGraph maintains the directed acyclic graph of role inheritance
// edges for each tenant. An edge (parent, child) means the parent role
// inherits every permission the child role has.
//
// AddEdge is a read-then-write sequence: the cycle check must pass before the
// edge is persisted. Mutations are serialized per tenant so two concurrent
// callers cannot slip an undetected cycle in between check and insert.
type InheritanceGraph struct {
	db    *sql.DB
	roles *RoleStore
	locks sync.Map // tenant id -> *sync.Mutex
}

// NewInheritanceGraph creates a new inheritance graph over the given store.
func NewInheritanceGraph(db *sql.DB, roles *RoleStore) *InheritanceGraph {
	return &InheritanceGraph{db: db, roles: roles}
}

func (g *InheritanceGraph) tenantLock(tenantID int64) *sync.Mutex {
	mu, _ := g.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// AddEdge records that parent inherits from child. Adding an edge that
// already exists is a no-op. The owner role cannot participate on either
// side, and an edge that would create a cycle is rejected with the graph
// unchanged.
func (g *InheritanceGraph) AddEdge(ctx context.Context, tenantID, parentID, childID int64) error {
	parent, err := g.roles.Get(ctx, tenantID, parentID)
	if err != nil {
		return err
	}
	child, err := g.roles.Get(ctx, tenantID, childID)
	if err != nil {
		return err
	}
	if parent.Kind() == KindOwner {
		return &ImmutableRoleError{RoleID: parentID, Reason: "the owner role cannot participate in inheritance"}
	}
	if child.Kind() == KindOwner {
		return &ImmutableRoleError{RoleID: childID, Reason: "the owner role cannot participate in inheritance"}
	}

	mu := g.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	adj, err := g.adjacency(ctx, tenantID)
	if err != nil {
		return serverErr("add inheritance edge", err)
	}

	for _, existing := range adj[parentID] {
		if existing == childID {
			return nil
		}
	}
	if wouldCreateCycle(adj, parentID, childID) {
		return &CycleError{ParentRoleID: parentID, ChildRoleID: childID}
	}

	query := `
		INSERT INTO role_inheritance (tenant_id, parent_role_id, child_role_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (parent_role_id, child_role_id) DO NOTHING
	`
	if _, err := g.db.ExecContext(ctx, query, tenantID, parentID, childID, time.Now().UTC()); err != nil {
		return serverErr("add inheritance edge", err)
	}
	return nil
}

// RemoveEdge deletes the (parent, child) edge. Removing a missing edge
// reports not found.
func (g *InheritanceGraph) RemoveEdge(ctx context.Context, tenantID, parentID, childID int64) error {
	mu := g.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	query := `
		DELETE FROM role_inheritance
		WHERE tenant_id = $1 AND parent_role_id = $2 AND child_role_id = $3
	`
	res, err := g.db.ExecContext(ctx, query, tenantID, parentID, childID)
	if err != nil {
		return serverErr("remove inheritance edge", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return serverErr("remove inheritance edge", err)
	}
	if affected == 0 {
		return &NotFoundError{Kind: "inheritance edge", ID: parentID}
	}
	return nil
}

// WouldCreateCycle reports whether adding (parent, child) would let parent
// transitively inherit from itself. Usable as a pre-flight check before
// AddEdge.
func (g *InheritanceGraph) WouldCreateCycle(ctx context.Context, tenantID, parentID, childID int64) (bool, error) {
	adj, err := g.adjacency(ctx, tenantID)
	if err != nil {
		return false, serverErr("cycle check", err)
	}
	return wouldCreateCycle(adj, parentID, childID), nil
}

// wouldCreateCycle walks the existing edges from child with an explicit
// stack; reaching parent means the new edge would close a loop.
func wouldCreateCycle(adj map[int64][]int64, parentID, childID int64) bool {
	if parentID == childID {
		return true
	}
	visited := make(map[int64]bool)
	stack := []int64{childID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == parentID {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, adj[current]...)
	}
	return false
}

// Children returns the roles the given role directly inherits from, ordered
// by role id.
func (g *InheritanceGraph) Children(ctx context.Context, tenantID, roleID int64) ([]Role, error) {
	if _, err := g.roles.Get(ctx, tenantID, roleID); err != nil {
		return nil, err
	}

	query := `
		SELECT r.id, r.tenant_id, r.name, r.description, r.role_type, r.is_system_role, r.created_at, r.updated_at
		FROM roles r
		JOIN role_inheritance ri ON r.id = ri.child_role_id
		WHERE ri.tenant_id = $1 AND ri.parent_role_id = $2
		ORDER BY r.id ASC
	`
	rows, err := g.db.QueryContext(ctx, query, tenantID, roleID)
	if err != nil {
		return nil, serverErr("list children", err)
	}
	defer rows.Close()

	var children []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, serverErr("list children", err)
		}
		children = append(children, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, serverErr("list children", err)
	}
	return children, nil
}

// Edges returns every inheritance edge of the tenant.
func (g *InheritanceGraph) Edges(ctx context.Context, tenantID int64) ([]InheritanceEdge, error) {
	query := `
		SELECT tenant_id, parent_role_id, child_role_id, created_at
		FROM role_inheritance
		WHERE tenant_id = $1
		ORDER BY parent_role_id ASC, child_role_id ASC
	`
	rows, err := g.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, serverErr("list inheritance edges", err)
	}
	defer rows.Close()

	var edges []InheritanceEdge
	for rows.Next() {
		var e InheritanceEdge
		if err := rows.Scan(&e.TenantID, &e.ParentRoleID, &e.ChildRoleID, &e.CreatedAt); err != nil {
			return nil, serverErr("list inheritance edges", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, serverErr("list inheritance edges", err)
	}
	return edges, nil
}

// Forest returns the tenant's roles as a display-ordered depth-annotated
// list. Roots are roles that no edge targets as a child; the walk follows
// parent->child edges depth-first with children ordered by id. A role
// reachable from two roots appears once.
func (g *InheritanceGraph) Forest(ctx context.Context, tenantID int64) ([]ForestEntry, error) {
	roles, err := g.roles.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	edges, err := g.Edges(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	adj := make(map[int64][]int64)
	isChild := make(map[int64]bool)
	for _, e := range edges {
		adj[e.ParentRoleID] = append(adj[e.ParentRoleID], e.ChildRoleID)
		isChild[e.ChildRoleID] = true
	}
	for _, children := range adj {
		sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	}

	var forest []ForestEntry
	visited := make(map[int64]bool)

	var walk func(id int64, depth int)
	walk = func(id int64, depth int) {
		if visited[id] {
			return
		}
		visited[id] = true
		role, ok := byID[id]
		if !ok {
			return
		}
		forest = append(forest, ForestEntry{Role: role, Depth: depth})
		for _, child := range adj[id] {
			walk(child, depth+1)
		}
	}

	for _, r := range roles {
		if !isChild[r.ID] {
			walk(r.ID, 0)
		}
	}
	return forest, nil
}

// adjacency loads the tenant's edges as a parent -> children index.
func (g *InheritanceGraph) adjacency(ctx context.Context, tenantID int64) (map[int64][]int64, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT parent_role_id, child_role_id FROM role_inheritance WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adj := make(map[int64][]int64)
	for rows.Next() {
		var parent, child int64
		if err := rows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		adj[parent] = append(adj[parent], child)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, children := range adj {
		sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })
	}
	return adj, nil
}
