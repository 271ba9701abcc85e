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

// Package ids mints and validates the typed, prefixed identifiers used
// throughout the orchestration service (job-, task-, req-, evt-, batch-,
// worker-), plus a microsecond-precision UTC clock and formatter.
package ids

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Prefix enumerates the identifier namespaces minted by New.
type Prefix string

const (
	PrefixJob    Prefix = "job"
	PrefixTask   Prefix = "task"
	PrefixReq    Prefix = "req"
	PrefixEvent  Prefix = "evt"
	PrefixBatch  Prefix = "batch"
	PrefixWorker Prefix = "worker"
)

var idPattern = regexp.MustCompile(`^(job|task|req|evt|batch|worker)-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// New mints a fresh identifier of the form "<prefix>-<uuid4>".
func New(p Prefix) string {
	return fmt.Sprintf("%s-%s", p, uuid.NewString())
}

// Valid reports whether id is a well-formed identifier minted by New,
// for any of the known prefixes.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// HasPrefix reports whether id is a well-formed identifier for exactly p.
func HasPrefix(id string, p Prefix) bool {
	return Valid(id) && len(id) > len(p) && id[:len(p)] == string(p) && id[len(p)] == '-'
}

// Now returns the current time in UTC rounded to microsecond precision.
// Not every timestamp in the system comes from it: the store stamps
// updated_at on status changes with time.Now directly, unrounded.
func Now() time.Time {
	return time.Now().UTC().Round(time.Microsecond)
}

// FormatRFC3339Micro renders t in fixed ISO-8601 UTC with microseconds.
// No other package calls it: event envelope timestamps use encoding/json's
// default time.Time encoding, and analyzer results carry a second-precision
// RFC 3339 analysis_time.
func FormatRFC3339Micro(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}
