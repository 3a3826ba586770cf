package engine

import (
	"context"
	"errors"
	"slices"
)

// SkipDir can be returned by a WalkFunc for a directory entry to keep the
// walker from descending into its target.
var SkipDir = errors.New("skip this directory")

// Visit is one entry reached by a walk.
type Visit struct {
	// Path lists the namespaces from the root down to the one holding Entry
	Path []Ref

	// Entry is the entry, without its body
	Entry Entry

	// Err explains why a directory is not descended into: ErrCycle when its
	// target is already on Path, ErrNotFound when the target is not a
	// registered namespace. Nil otherwise.
	Err error
}

// Depth is the number of directory links between the root and the entry.
func (v Visit) Depth() int {
	return len(v.Path) - 1
}

// WalkFunc is called for every entry in a walk.
type WalkFunc func(v Visit) error

// Walker traverses a namespace tree by following directory targets.
//
// Namespaces only ever point at each other, so nothing stops a chain of
// directories from leading back to a namespace already being walked
// (A -> B -> A). The engine accepts such chains; the walker is where they
// are detected: a directory whose target is already on the current path is
// reported with ErrCycle and not descended into.
type Walker struct {
	host *Host
}

// NewWalker returns a walker over the namespaces of h.
func NewWalker(h *Host) *Walker {
	return &Walker{host: h}
}

// Walk visits every entry reachable from root depth-first. Entries of one
// namespace are visited in ascending id order.
//
// If fn returns SkipDir for a directory, its target is not visited. Any
// other error stops the walk and is returned.
func (w *Walker) Walk(ctx context.Context, root Ref, fn WalkFunc) error {
	if _, err := w.host.Namespace(ctx, root); err != nil {
		return err
	}
	return w.walk(ctx, []Ref{root}, fn)
}

func (w *Walker) walk(ctx context.Context, path []Ref, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ns := w.host.open(path[len(path)-1])
	ids, err := ns.GetEntries(ctx)
	if err != nil {
		return err
	}
	slices.Sort(ids)

	for _, id := range ids {
		e, err := ns.Stat(ctx, id)
		if err != nil {
			return err
		}
		if !e.Exists {
			continue
		}

		v := Visit{Path: slices.Clone(path), Entry: e}
		descend := e.Kind == KindDirectory
		if descend {
			if slices.Contains(path, e.Target) {
				v.Err = newError("Walk", ErrCycle, id, "target %s is already on the path", e.Target)
				descend = false
			} else if _, err := w.host.Namespace(ctx, e.Target); err != nil {
				if !IsCode(err, ErrNotFound) {
					return err
				}
				v.Err = err
				descend = false
			}
		}

		if err := fn(v); err != nil {
			if errors.Is(err, SkipDir) && e.Kind == KindDirectory {
				continue
			}
			return err
		}

		if descend {
			if err := w.walk(ctx, append(slices.Clone(path), e.Target), fn); err != nil {
				return err
			}
		}
	}
	return nil
}
