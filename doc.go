// Package hazptr implements hazard-pointer based safe memory
// reclamation: many readers may dereference a shared pointer while a
// writer swaps and later retires the old value, without paying for a
// reference count on every read.
//
// A writer publishes an object behind an ObjectRef (OwnedRef or
// BareAtomic), then retires the pointer it displaces to a Domain. A
// reader rents a HazardSlot from the same Domain through a Holder,
// calls Protect to turn the raw load into a borrow with a bounded
// lifetime, and Resets or drops the Holder when done. The Domain
// periodically scans its slots and frees anything no holder still
// references.
package hazptr
