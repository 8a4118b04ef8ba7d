// Package csvw validates groups of CSV tables described by CSV on the Web
// style metadata, including primary keys and foreign keys between tables.
//
// # Model
//
// [Table], [Column] and [ForeignKey] describe the resolved schema and never
// change once built. A foreign key is shared by pointer between the table
// that declares it (in ForeignKeys) and the table it points at (in
// ForeignKeyReferences); the referenced table may be the declaring table
// itself.
//
// # Validation runs
//
// All state that grows while data is read lives in a [Session], which owns
// one [TableValidator] per table. A run has two phases:
//
//  1. Every row of every table is fed to its TableValidator. Besides cell
//     checks, a full validation records primary-key tuples (to detect
//     duplicates), the values this table offers to incoming foreign keys,
//     and the values its own foreign keys point at.
//  2. Once every table has been read, [Session.ValidateForeignKeys] asks
//     each referencing table to reconcile its recorded values with the
//     values recorded by the referenced table.
//
// Because each table only ever indexes its own rows, tables can be read in
// any order, and in parallel, as long as phase 2 waits for all of them.
// Rows within one table must be fed in file order: duplicate keys are
// reported against the first row that used them.
//
// Multi-valued cells (columns with a separator) expand to the cartesian
// product of their values when keys are indexed.
package csvw
