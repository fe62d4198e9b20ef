// ABOUTME: Collection name grammar and cross-reference beacon encoding
// ABOUTME: Every action normalizes its collection argument through here

package collection

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SchemaExt is the extension of schema definition files
const SchemaExt = ".json"

// BeaconHost is the host segment Weaviate expects in local beacons
const BeaconHost = "localhost"

// ErrInvalidName indicates a collection argument outside the accepted grammar
var ErrInvalidName = errors.New("collection: invalid name")

// Accepted grammar after stripping one optional ".json" suffix:
//
//	name = upper { letter | digit | "_" }
//
// e.g. "Memory", "Memory_v1". The leading upper-case letter matches how the
// store capitalizes class names; anything else would never match its listing.
var namePattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)

// Normalize validates a user-supplied collection argument and returns the
// bare collection name. "Memory_v1" and "Memory_v1.json" both yield "Memory_v1".
func Normalize(arg string) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(arg), SchemaExt)
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q (want an upper-case letter followed by letters, digits or '_')", ErrInvalidName, arg)
	}
	return name, nil
}

// SchemaFile returns the schema definition file name for a collection
func SchemaFile(name string) string {
	return name + SchemaExt
}

// Link is a cross-reference value stored in a reference property
type Link struct {
	Beacon string `json:"beacon"`
}

// NewLink builds the beacon pointing at id inside collection
func NewLink(collection, id string) Link {
	return Link{Beacon: fmt.Sprintf("weaviate://%s/%s/%s", BeaconHost, collection, id)}
}
