// sqlcheck is a SQL-quality-analysis orchestration service.
// Copyright (C) 2025  Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package apierr maps the orchestration service's error taxonomy (spec §7)
// onto HTTP status codes for the Control API.
package apierr

import "net/http"

// Kind is one taxonomy entry from spec §7.
type Kind string

const (
	Validation     Kind = "VALIDATION"
	NotFound       Kind = "NOT_FOUND"
	Conflict       Kind = "CONFLICT"
	FileNotFound   Kind = "FILE_NOT_FOUND"
	FileAccess     Kind = "FILE_ACCESS"
	Encoding       Kind = "ENCODING"
	ArchiveCorrupt Kind = "ARCHIVE_CORRUPT"
	ArchiveLimit   Kind = "ARCHIVE_LIMIT"
	Analyzer       Kind = "ANALYZER"
	Timeout        Kind = "TIMEOUT"
	Bus            Kind = "BUS"
	Lock           Kind = "LOCK"
	Repository     Kind = "REPOSITORY"
	InvalidSQLSkip Kind = "INVALID_SQL_SKIP"
)

// Error is a taxonomy-classified error carrying a user-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New constructs a classified Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// StatusCode maps a Kind to the HTTP status the Control API should return.
func StatusCode(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case FileNotFound:
		return http.StatusNotFound
	case FileAccess, Encoding:
		return http.StatusBadRequest
	case ArchiveCorrupt, ArchiveLimit:
		return http.StatusBadRequest
	case Analyzer:
		return http.StatusInternalServerError
	case Timeout:
		return http.StatusRequestTimeout
	case Bus, Lock, Repository:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
