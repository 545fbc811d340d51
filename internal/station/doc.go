// Package station tracks which Opulent Voice stations have been heard, when,
// and from where. Station ids are informational only and are never validated
// against a roster.
package station
