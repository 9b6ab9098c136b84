package doclock

// resolveRoot walks parent references from h up to the root Handle,
// returning the root's Descriptor together with the scope/key computed
// against the root instance (spec.md SS4.C: "The scope/key used for the
// lock are those of the root descriptor, not the descriptor of the
// originally-passed instance").
//
// It detects cycles by remembering the class names visited so far; a
// parent chain that revisits a class yields a *CircularLockError wrapping
// ErrCircularLock, citing the full visited set, before any store
// interaction has taken place.
func resolveRoot(h Handle) (desc *Descriptor, root Handle, scope, key string, err error) {
	visited := make([]string, 0, 4)
	cur := h

	for {
		d, derr := descriptorFor(cur)
		if derr != nil {
			return nil, nil, "", "", derr
		}

		cls := cur.ClassName()
		for _, v := range visited {
			if v == cls {
				return nil, nil, "", "", &CircularLockError{Classes: append(append([]string{}, visited...), cls)}
			}
		}
		visited = append(visited, cls)

		if d.IsRoot() {
			scope, serr := d.scopeFor(cur)
			if serr != nil {
				return nil, nil, "", "", serr
			}
			key, kerr := d.keyFor(cur)
			if kerr != nil {
				return nil, nil, "", "", kerr
			}
			return d, cur, scope, key, nil
		}

		parent, perr := d.parentFor(cur)
		if perr != nil {
			return nil, nil, "", "", perr
		}
		if parent == nil {
			// A non-root descriptor produced no parent: broken
			// configuration, spec.md SS4.C "reached an instance whose
			// class descriptor is not a root".
			return nil, nil, "", "", newLockError("resolve", "", "", ErrInvalidConfig)
		}
		cur = parent
	}
}
