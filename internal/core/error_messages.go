// Package core provides the business logic for shift roster imports.
//
// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Codes are grouped by category:
//
// # Structural Errors (STR001-STR099)
//
//	STR001 - No header row found in the first rows of the sheet
//	STR002 - A required column (date, shift type, count) is missing
//	STR003 - Two fields claim the same column
//	STR004 - Too many warnings; the file is rejected as a whole
//
// # Profile Errors (PRF001-PRF099)
//
//	PRF001 - Profile is incomplete or inconsistent
//	PRF002 - Profile is not registered
//	PRF003 - Profile name is already taken
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - One or more rows failed validation
//	ROW002 - A rejected import cannot be committed
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	FILE002 - Unsupported file type
//	FILE003 - File contains invalid characters
//	FILE004 - No file provided
//	FILE005 - File is empty
//	FILE006 - Spreadsheet could not be read
//
// # Run Errors (UPL001-UPL099)
//
//	UPL001 - Too many concurrent imports
//	UPL002 - Import not found
//	UPL003 - Request cancelled
//	UPL004 - Request timed out
//	UPL005 - Commit already in progress
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - API key missing
//	REQ002 - API key not accepted
//	REQ003 - Rate limit exceeded
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Database unreachable
//	DB002 - Import already stored
//	DB003 - Persistence disabled
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the application logs for
// the technical error.
//
// Typed errors (*StructureError, *InvalidProfileError) are matched first.
// Other errors are matched case-insensitively with strings.Contains and the
// first matching pattern wins. Hints attached with errors.WithHint replace
// the default Action.
package core

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var structureMessages = map[StructureErrorCode]UserMessage{
	NoHeaderFound: {
		Message: "No header row was found",
		Action:  "Make sure the sheet has a header row with date, shift and count columns near the top",
		Code:    "STR001",
	},
	MissingColumns: {
		Message: "A required column is missing",
		Action:  "Add the missing columns or choose a profile that knows their header names",
		Code:    "STR002",
	},
	AmbiguousColumns: {
		Message: "A header matches more than one field",
		Action:  "Rename the header so that it names a single field",
		Code:    "STR003",
	},
}

var invalidProfileMessage = UserMessage{
	Message: "The profile is incomplete",
	Action:  "Complete the listed profile sections",
	Code:    "PRF001",
}

// errorPatterns are tried in order; specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"too many warnings", UserMessage{"The file has too many warnings to be imported", "Fix the flagged rows or use a more permissive profile", "STR004"}},
	{"no header row found", structureMessages[NoHeaderFound]},
	{"missing required column", structureMessages[MissingColumns]},
	{"ambiguous columns", structureMessages[AmbiguousColumns]},

	{"invalid profile", invalidProfileMessage},
	{"profile not found", UserMessage{"The profile is not registered", "Pick one of the listed profiles", "PRF002"}},
	{"profile already registered", UserMessage{"A profile with this name already exists", "Choose a different profile name", "PRF003"}},

	{"row errors", UserMessage{"Some rows failed validation", "Correct the rows listed under errors and upload the file again", "ROW001"}},
	{"import was rejected", UserMessage{"Rejected imports cannot be committed", "Fix the reported errors and preview the file again", "ROW002"}},

	{"file too large", UserMessage{"File exceeds the maximum size limit", "Split the roster into smaller files", "FILE001"}},
	{"unsupported file type", UserMessage{"This file type is not supported", "Upload an .xlsx, .xls or .csv file", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Select a roster file to upload", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Upload a roster with at least a header row", "FILE005"}},
	{"read spreadsheet", UserMessage{"The spreadsheet could not be read", "Open the file in a spreadsheet program and save it again", "FILE006"}},

	{"too many concurrent imports", UserMessage{"System is busy processing other imports", "Please wait a moment and try again", "UPL001"}},
	{"import not found", UserMessage{"Import not found", "Check the import id", "UPL002"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL003"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "UPL004"}},
	{"commit already in progress", UserMessage{"This import is already being stored", "Wait a moment and reload the import", "UPL005"}},

	{"missing api key", UserMessage{"An API key is required", "Send the key in the X-API-Key header", "REQ001"}},
	{"invalid api key", UserMessage{"The API key was not accepted", "Check the key with the administrator", "REQ002"}},
	{"rate limit exceeded", UserMessage{"Too many requests", "Wait a minute before trying again", "REQ003"}},

	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB001"}},
	{"duplicate key", UserMessage{"This import was already stored", "Preview the file again to get a new import id", "DB002"}},
	{"persistence disabled", UserMessage{"Imports cannot be stored on this server", "Configure DATABASE_URL to enable commits", "DB003"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	msg := matchError(err)
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		msg.Action = hints[0]
	}
	return msg
}

func matchError(err error) UserMessage {
	var se *StructureError
	if errors.As(err, &se) {
		if msg, ok := structureMessages[se.Code]; ok {
			return msg
		}
	}
	var ip *InvalidProfileError
	if errors.As(err, &ip) {
		return invalidProfileMessage
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
