package conflicts

import "strings"

// IdentityKey is the stable key of a conflict used for notification dedup.
// Any change to the id, either flag or the file list yields a different key.
func IdentityKey(c Conflict) string {
	parts := make([]string, 0, 3+len(c.ConflictingFiles))
	parts = append(parts, c.ID, flag(c.Conflicting), flag(c.IsConflictInWorkingDirectory))
	parts = append(parts, c.ConflictingFiles...)
	return strings.Join(parts, ",")
}

func flag(b bool) string {
	if b {
		return "t"
	}
	return "f"
}

// identitySet skips pull request conflicts: they change too often to drive a popup.
func identitySet(in []ForRepo) map[string]struct{} {
	set := make(map[string]struct{})
	for _, r := range in {
		for _, c := range r.Conflicts {
			if c.IsPullRequest() {
				continue
			}
			set[IdentityKey(c)] = struct{}{}
		}
	}
	return set
}

// Equal reports whether a and b hold the same non-PR conflict identities,
// regardless of order.
func Equal(a, b []ForRepo) bool {
	as, bs := identitySet(a), identitySet(b)
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	for k := range bs {
		if _, ok := as[k]; !ok {
			return false
		}
	}
	return true
}

// HasNew decides whether fresh should produce a notification given the last
// known state. An empty fresh result never does, so a failed fetch cycle
// cannot wipe or re-trigger notifications.
func HasNew(known, fresh []ForRepo) bool {
	return len(fresh) > 0 && !Equal(known, fresh)
}
