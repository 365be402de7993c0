package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ChangeAction is a staged toggle direction.
type ChangeAction string

const (
	ChangeAdd    ChangeAction = "add"
	ChangeRemove ChangeAction = "remove"
)

// ChangeSet accumulates permission toggles for one role against a baseline
// snapshot of its direct grants, and commits them as one reported-atomic
// operation. It is a plain value type with no storage access until Commit;
// Diff is a pure function of the baseline plus the pending map.
//
// A ChangeSet is not safe for concurrent use; it models a single editing
// session.
type ChangeSet struct {
	RoleID int64

	baseline       map[int64]bool
	pendingAdds    map[int64]bool
	pendingRemoves map[int64]bool
}

// NewChangeSet opens a change set for a role. baseline is the role's current
// direct grant set, captured when the editing session starts.
func NewChangeSet(roleID int64, baseline []int64) *ChangeSet {
	cs := &ChangeSet{
		RoleID:         roleID,
		baseline:       make(map[int64]bool, len(baseline)),
		pendingAdds:    make(map[int64]bool),
		pendingRemoves: make(map[int64]bool),
	}
	for _, id := range baseline {
		cs.baseline[id] = true
	}
	return cs
}

// Stage records a toggle. Staging the opposite of a pending change cancels it
// and returns the permission to its baseline state rather than queueing
// contradictory operations. Staging a change that matches the baseline is a
// no-op.
func (cs *ChangeSet) Stage(permissionID int64, action ChangeAction) {
	switch action {
	case ChangeAdd:
		if cs.pendingRemoves[permissionID] {
			delete(cs.pendingRemoves, permissionID)
			return
		}
		if !cs.baseline[permissionID] {
			cs.pendingAdds[permissionID] = true
		}
	case ChangeRemove:
		if cs.pendingAdds[permissionID] {
			delete(cs.pendingAdds, permissionID)
			return
		}
		if cs.baseline[permissionID] {
			cs.pendingRemoves[permissionID] = true
		}
	}
}

// Unstage drops any pending toggle for the permission.
func (cs *ChangeSet) Unstage(permissionID int64) {
	delete(cs.pendingAdds, permissionID)
	delete(cs.pendingRemoves, permissionID)
}

// Diff compares the staged view against the baseline.
type Diff struct {
	ToAdd    []int64 `json:"to_add"`
	ToRemove []int64 `json:"to_remove"`
}

// Diff returns the net changes the commit would apply, in ascending
// permission-id order.
func (cs *ChangeSet) Diff() Diff {
	d := Diff{ToAdd: []int64{}, ToRemove: []int64{}}
	for id := range cs.pendingAdds {
		d.ToAdd = append(d.ToAdd, id)
	}
	for id := range cs.pendingRemoves {
		d.ToRemove = append(d.ToRemove, id)
	}
	sort.Slice(d.ToAdd, func(i, j int) bool { return d.ToAdd[i] < d.ToAdd[j] })
	sort.Slice(d.ToRemove, func(i, j int) bool { return d.ToRemove[i] < d.ToRemove[j] })
	return d
}

// HasPendingChanges reports whether any toggles are staged. Callers switching
// the role being edited should gate on this and require confirmation before
// Discard.
func (cs *ChangeSet) HasPendingChanges() bool {
	return len(cs.pendingAdds) > 0 || len(cs.pendingRemoves) > 0
}

// Discard drops all pending toggles.
func (cs *ChangeSet) Discard() {
	cs.pendingAdds = make(map[int64]bool)
	cs.pendingRemoves = make(map[int64]bool)
}

// CommitResult reports per-item outcomes of a commit.
type CommitResult struct {
	Applied int      `json:"applied"`
	Errors  []string `json:"errors"`
}

// Commit applies the diff through the grant store: adds become grants,
// removes become revokes. Sub-operations run concurrently and are not wrapped
// in one storage transaction; every individual failure is reported, never
// silently dropped. Pending state is cleared only for items that applied.
func (cs *ChangeSet) Commit(ctx context.Context, tenantID int64, grants *GrantStore, grantedBy *int64) *CommitResult {
	diff := cs.Diff()
	result := &CommitResult{Errors: []string{}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, id := range diff.ToAdd {
		id := id
		g.Go(func() error {
			err := grants.Assign(gctx, tenantID, cs.RoleID, id, nil, grantedBy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("add %d: %s", id, err.Error()))
				return nil
			}
			result.Applied++
			cs.baseline[id] = true
			delete(cs.pendingAdds, id)
			return nil
		})
	}
	for _, id := range diff.ToRemove {
		id := id
		g.Go(func() error {
			err := grants.Remove(gctx, tenantID, cs.RoleID, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("remove %d: %s", id, err.Error()))
				return nil
			}
			result.Applied++
			delete(cs.baseline, id)
			delete(cs.pendingRemoves, id)
			return nil
		})
	}

	// Workers never return errors; failures are collected per item.
	_ = g.Wait()
	sort.Strings(result.Errors)
	return result
}
