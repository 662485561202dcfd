package types

// Agent and Host are the two descriptor types persisted by pkg/fleet/storage.
// Every other package in pkg/fleet operates on these through pointers and
// treats them as the single source of truth for identity, labels, and
// intended (as opposed to observed) state.
