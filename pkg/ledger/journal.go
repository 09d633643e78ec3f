package ledger

// Journal collects compensating actions for mutations performed by memory
// stores during one top-level call. On failure the actions run in reverse
// order, restoring the state that existed when the call started.
//
// The executor serializes calls, so the journal needs no locking.
type Journal struct {
	undos []func()
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// RecordUndo registers a compensating action for a mutation just performed.
func (j *Journal) RecordUndo(undo func()) {
	if undo == nil {
		return
	}
	j.undos = append(j.undos, undo)
}

// Revert runs all compensating actions in reverse order and clears the journal.
func (j *Journal) Revert() {
	for i := len(j.undos) - 1; i >= 0; i-- {
		j.undos[i]()
	}
	j.undos = nil
}

// Len reports the number of pending compensating actions.
func (j *Journal) Len() int {
	return len(j.undos)
}

// Transients is the per-call set of transient capabilities. Keys are opaque
// to the ledger; capability owners derive them from (handle, grantee) pairs.
// The set lives only as long as the call's context and is never persisted.
type Transients struct {
	grants map[string]struct{}
}

// NewTransients creates an empty transient capability set.
func NewTransients() *Transients {
	return &Transients{grants: make(map[string]struct{})}
}

// Add records a transient capability.
func (t *Transients) Add(key string) {
	t.grants[key] = struct{}{}
}

// Has reports whether a transient capability was issued in this call.
func (t *Transients) Has(key string) bool {
	_, ok := t.grants[key]
	return ok
}

// Len reports the number of transient capabilities issued so far.
func (t *Transients) Len() int {
	return len(t.grants)
}
