// Package registry provides a generic thread-safe index of values by key.
//
// The event bus uses it for identity-keyed bookkeeping that is read far more
// often than written: the event type name index of a Hierarchy, the Go type
// bindings used by the listener adapter, and the adapter's side table that
// remembers which listeners a handler object produced.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	if !r.StoreIfAbsent("one", 1) {
//	    // already present
//	}
//
//	v, ok := r.Get("one")
//
// # Ownership Tables
//
// StoreIfAbsent and LoadAndDelete give check-and-set semantics without an
// external lock, which is what an owner table needs:
//
//	owners := registry.New[any, []*Listener]()
//	if !owners.StoreIfAbsent(obj, records) {
//	    return ErrAlreadyRegistered
//	}
//	...
//	records, ok := owners.LoadAndDelete(obj)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Range and Values work on a
// snapshot, so callbacks may mutate the registry.
package registry
