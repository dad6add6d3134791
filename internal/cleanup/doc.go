// Package cleanup deletes rendered slide objects once they fall outside the
// retention window and clears the matching storage keys on slide rows.
//
// Sweeps may run from several worker processes at once; a Locker, when
// configured, makes sure only one of them deletes at a time.
package cleanup
