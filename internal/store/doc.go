// Package store provides the encrypted, date-partitioned record store.
//
// Every model's records live in partition files laid out as
//
//	<root>/<YYYY>/<MM>/<DD>/<Model>.<ext>
//
// A partition holds the records appended on one calendar day (by the store
// clock, never by field values). Its plaintext is a canonical JSON array,
// optionally compressed by internal/codec, sealed by an internal/cipher Cipher.
//
// # Writes
//
// Append and Delete require an authenticated session. Both are
// read-modify-write cycles over whole partitions, serialized per model, and
// the rewritten partition replaces the old file via rename.
//
// # Corruption
//
// A partition that fails to decrypt or parse yields a CorruptionError. Under
// SkipPartition (the default) it is logged, counted and treated as empty;
// under FailOnCorruption the error is returned.
//
// # Index
//
// Partitions decoded by Load are indexed whole in the model's
// index.ModelIndex. Append keeps the index current and Delete resets it.
package store
