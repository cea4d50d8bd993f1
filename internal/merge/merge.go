// Package merge implements the backend-neutral half of the config
// store's merge policy: given the full historical key-state of a
// source branch and a target branch, compute the union with the
// source winning on conflicting keys. The memory and sqlite backends
// both flatten their key-value representation into this shape and
// delegate the actual merge arithmetic here; the git backend instead
// reaches for git's own merge machinery (see internal/git) since it
// operates on whole files rather than an in-process map.
package merge

import (
	"bytes"
	"sort"
)

// Entry is one key's state as of a particular snapshot: either a live
// blob, or an explicit tombstone recording that the key was deleted.
type Entry struct {
	Value     []byte
	Tombstone bool
}

func (e Entry) equal(o Entry) bool {
	if e.Tombstone != o.Tombstone {
		return false
	}
	if e.Tombstone {
		return true
	}
	return bytes.Equal(e.Value, o.Value)
}

// Result is the outcome of a source-wins merge: the merged key-state
// plus the sorted list of keys whose merged entry differs from target's
// (the memory and sqlite backends stage only these before committing).
type Result struct {
	Merged      map[string]Entry
	SourceBranch string
	TargetBranch string
	ChangedKeys  []string
}

// SourceWins computes target ∪ source with source's entry replacing
// target's on every key source defines — including tombstones, so a
// deletion on source propagates as a deletion on target. Keys defined
// only in target are carried through unchanged.
func SourceWins(target, source map[string]Entry, sourceBranch, targetBranch string) Result {
	merged := make(map[string]Entry, len(target)+len(source))
	for k, v := range target {
		merged[k] = v
	}

	var changed []string
	for k, v := range source {
		if old, ok := target[k]; !ok || !old.equal(v) {
			changed = append(changed, k)
		}
		merged[k] = v
	}
	sort.Strings(changed)

	return Result{
		Merged:       merged,
		SourceBranch: sourceBranch,
		TargetBranch: targetBranch,
		ChangedKeys:  changed,
	}
}
