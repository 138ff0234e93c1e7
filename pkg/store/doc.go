// Package store provides a reference owner for the canonical state tree that
// modstate modules read from and dispatch into.
//
// Responsibilities:
//   - MemoryStore holds the root State, applies every action through
//     modstate.Reduce (plus any extra reducers) in dispatch order, and notifies
//     subscribers whose namespace slice changed identity.
//   - Binding is the accessor a consumer holds on to: it resolves a module
//     graph against the store and hands out a fresh Instance whenever one of
//     the bound slices changes.
//   - MapSlices selects the slices a consumer reads from a root snapshot.
//
// Data flow:
//
//	Instance.SetState -> Envelope -> MemoryStore.Dispatch -> modstate.Reduce -> subscribers -> Binding.Instance
//
// Configuration comes from MODSTATE_* environment variables (LoadConfig) or a
// config file (LoadConfigFile, WatchConfigFile) and is applied with WithConfig
// or, at run time, MemoryStore.Reconfigure.
package store
