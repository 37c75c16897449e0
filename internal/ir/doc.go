// Package ir defines the in-memory representation of stored records.
//
// A Record is a flat map from field name to value. Values are kept in a small
// set of canonical shapes so that records decoded from a partition compare
// equal to the records that were written:
//
//	nil, string, bool, int64, float64, []any, map[string]any
//
// Normalize converts arbitrary Go values (including json.Number produced by the
// partition decoder) into those shapes. Stringify, Key, Equal, Compare and
// Contains implement the value semantics used by the query engine and the
// secondary index.
//
// This package imports nothing internal. Every other internal package may
// import ir.
package ir
