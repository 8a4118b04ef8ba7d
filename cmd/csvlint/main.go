// csvlint validates CSV files against CSVW metadata or a JSON Table Schema.
//
// Usage:
//
//	# Validate every table described by a metadata document
//	csvlint validate --schema tables-metadata.json
//
//	# Validate given files, matched to tables by name
//	csvlint validate --schema tables-metadata.json countries.csv people.csv
//
//	# Validate one file against a JSON Table Schema, as JSON
//	csvlint validate --schema schema.json --format json data.csv
//
//	# Delete stored runs older than 30 days
//	csvlint runs prune --older-than 720h
//
// Exit status is 0 when the data is valid, 1 when it is not, and 2 when the
// run could not complete.
package main

func main() {
	Execute()
}
