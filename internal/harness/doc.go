// Package harness runs scenario tests against a fresh in-memory database.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: |
//	  model: Author: fields: name: {}
//	  model: Book: {
//	    fields: title: {}
//	    relations: author: {kind: "foreign_key", to: "Author", related_name: "books"}
//	  }
//	steps:
//	  - at: "2024-01-02"
//	  - save: {model: Author, id: ursula, values: {name: Ursula}}
//	  - save: {model: Book, id: earthsea, values: {title: Earthsea, author: ursula}}
//	  - link: {model: Book, id: earthsea, field: tags, targets: [sf]}
//	  - query:
//	      model: Book
//	      filter: {title__icontains: earth}
//	      expect: {ids: [earthsea]}
//	assertions:
//	  - type: count
//	    model: Book
//	    count: 1
//	  - type: final_state
//	    model: Book
//	    where: {id: earthsea}
//	    expect: {title: Earthsea}
//
// # Step Types
//
//   - at: moves the clock to a date; later saves land in that partition
//   - save: creates and saves an instance (the id defaults to a generated UUID)
//   - link / unlink: adds or removes many-to-many targets by id
//   - update: sets fields on every matching instance and saves them again
//   - delete: removes every matching instance
//   - query: runs a QuerySet and checks ids, count or an expected error
//
// # Assertion Types
//
//   - count: the number of instances of a model matching where
//   - final_state: the first instance matching where has the expected fields
//
// # Deterministic Testing
//
// Every run uses a settable clock starting on testutil.DefaultDate, an
// in-memory filesystem and an always-authenticated session. Scenarios that
// give explicit ids produce identical traces across runs, which makes them
// suitable for golden file comparison.
package harness
