// Package domain models hydrological station time series and the pure
// transforms that turn raw extracts into a template-conformant matrix.
//
// # Data Sources
//
// Extracts come from the basin agency's telemetry exports and from a
// precipitation forecast model. They reach this package already melted into
// long records by the source adapters: one [SourceRecord] per
// (timestamp, column label, value) triple. Column labels are free text written
// by whoever produced the export, so the same station shows up under several
// spellings:
//
//	"Zrarda_Débit (m3/s)"   "ZRARDA DEBIT"   "zerarda debit"
//
// # Station Identity
//
// The authoritative station list is the "Stations" sheet of the output
// template: integer code in column 1, canonical name in column 2 and, for
// precipitation templates, a variable name in column 4. A [Catalog] expands each
// name into normalized aliases according to the workflow's [AliasPattern] set
// and a fixed override table. Labels are resolved by exact alias first, then by
// best fuzzy ratio against every alias (see [Resolver]); anything else is
// unmapped and reported.
//
// Normalization (see [Normalize]):
//
//	trim → lower-case → strip diacritics → drop unit markers such as "(m3/s)"
//	→ "_" and punctuation to spaces → collapse whitespace
//
// # Time and Value Conventions
//
// Timestamps are day-first when ambiguous ("05/01/2024" is 5 January) and are
// treated as UTC when the source carries no zone. Decimal commas are accepted.
// A value that cannot be read as a finite number becomes null; it is never
// coerced to zero. Negative values are kept but counted.
//
// Duplicate (time, station) pairs keep the last occurrence in file order.
//
// # Output Grid
//
// A [Matrix] has one column per target code (the sorted union of catalog codes
// and codes already present in the template) and one row per distinct
// timestamp. Absent values are nil until a [FillPolicy] substitutes them at
// write time; summary statistics always describe the values that were present.
package domain
