package utils

import (
	"log"

	"github.com/google/uuid"
)

// GetUUID returns a random id used for session ids and scratch directories.
func GetUUID() string {
	u1, err := uuid.NewUUID()
	if err != nil {
		log.Fatal(err)
	}
	return u1.String()
}
