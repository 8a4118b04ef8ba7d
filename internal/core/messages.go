package core

// messages.go turns diagnostics and operational errors into user-facing
// text with a support code. Codes are grouped by prefix:
//
//	VAL001-VAL099   field checks on a single cell
//	STR001-STR099   header and row structure
//	REF001-REF099   keys and references between rows and tables
//	META001-META099 broken metadata or schema documents
//	FILE001-FILE099 uploaded files
//	RUN001-RUN099   run admission, cancellation and timeouts
//	DB001-DB099     run history storage
//	RATE001         request throttling
//	ERR000          anything not listed
//
// Operational errors are matched case-insensitively with strings.Contains;
// the first matching pattern wins, so specific patterns come first.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvlint/internal/diagnostic"
)

// UserMessage is a user-facing explanation with guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var kindMessages = map[diagnostic.Kind]UserMessage{
	diagnostic.MissingValue: {"A required value is empty", "Fill in the cell or mark the column as optional", "VAL001"},
	diagnostic.MinLength:    {"Value is shorter than the minimum length", "Check the value against the column's minLength", "VAL002"},
	diagnostic.MaxLength:    {"Value is longer than the maximum length", "Shorten the value or raise the column's maxLength", "VAL003"},
	diagnostic.Pattern:      {"Value does not match the required pattern", "Compare the value with the column's pattern", "VAL004"},
	diagnostic.InvalidRegex: {"The column's pattern is not a valid regular expression", "Fix the pattern in the schema", "VAL005"},
	diagnostic.Unique:       {"Value appears more than once in a unique column", "Remove or change the duplicate value", "VAL006"},
	diagnostic.InvalidType:  {"Value cannot be read as the declared type", "Check the value's format against the column datatype", "VAL007"},
	diagnostic.BelowMinimum: {"Value is below the allowed minimum", "Check the value against the column's minimum", "VAL008"},
	diagnostic.AboveMaximum: {"Value is above the allowed maximum", "Check the value against the column's maximum", "VAL009"},

	diagnostic.KnownHeaderWrongColumn: {"A known column header is in the wrong position", "Reorder the columns to match the schema", "STR001"},
	diagnostic.UnknownHeader:          {"Header is not defined by the schema", "Rename or remove the column", "STR002"},
	diagnostic.MissingHeader:          {"A column defined by the schema has no header", "Add the missing column", "STR003"},
	diagnostic.MalformedHeader:        {"Header row does not match the expected header", "Compare the header row with the schema", "STR004"},
	diagnostic.InvalidHeader:          {"Header does not match the column's titles", "Use one of the column's declared titles", "STR005"},
	diagnostic.TooManyValues:          {"Row has more values than the table has columns", "Remove surplus values or declare more columns", "STR006"},
	diagnostic.MissingColumn:          {"Row has fewer values than the schema has fields", "Add the missing values", "STR007"},
	diagnostic.ExtraColumn:            {"Row has more values than the schema has fields", "Remove surplus values", "STR008"},

	diagnostic.DuplicateKey:                 {"Primary key value was already used by an earlier row", "Make the key unique", "REF001"},
	diagnostic.UnmatchedForeignKeyReference: {"Referenced value does not exist in the target table", "Add the referenced row or correct the value", "REF002"},
	diagnostic.MultipleMatchedRows:          {"Referenced value matches more than one row in the target table", "Make the referenced column unique", "REF003"},
	diagnostic.InvalidColumnReference:       {"Metadata refers to a column that does not exist", "Correct the column name in the metadata", "REF004"},
}

// MapKind returns the user-facing message for a diagnostic kind.
func MapKind(kind diagnostic.Kind) UserMessage {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return defaultMessage
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Metadata and schema documents.
	{"metadata:", UserMessage{"The metadata document is invalid", "Fix the reported location in the metadata", "META001"}},
	{"schema:", UserMessage{"The schema document is invalid", "Fix the reported location in the schema", "META002"}},

	// Uploaded files.
	{"file too large", UserMessage{"Upload exceeds the maximum size", "Split the data or validate it with the CLI", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Check quoting and delimiters", "FILE002"}},
	{"no file provided", UserMessage{"No CSV file was provided", "Attach at least one file part", "FILE003"}},
	{"no table described", UserMessage{"File does not match any table in the metadata", "Name the file after a table url", "FILE004"}},
	{"invalid upload", UserMessage{"Upload is not a valid multipart form", "Send the metadata and file parts as multipart/form-data", "FILE005"}},
	{"invalid option", UserMessage{"A request option has an invalid value", "Use true or false", "FILE006"}},

	// Run admission.
	{"too many validation runs", UserMessage{"The validator is busy", "Please wait a moment and try again", "RUN001"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "RUN002"}},
	{"context deadline exceeded", UserMessage{"Validation timed out", "Validate smaller files or raise the timeout", "RUN003"}},

	// Run history.
	{"run not found", UserMessage{"Validation run not found", "Check the run id", "DB002"}},
	{"run history is disabled", UserMessage{"Run history is not configured", "Set DATABASE_URL to keep run history", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an operational error to a user-facing message. Errors
// matching no pattern get ERR000; the technical error is for the logs.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	text := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(text, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}
