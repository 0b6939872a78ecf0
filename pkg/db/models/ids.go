package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert so rows get their ids from
// the application rather than a database default.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
