// Package thing defines the Ditto Thing payload pushed on every tick.
package thing

import "encoding/json"

// Thing is the full desired state of a remote twin (Ditto Thing JSON).
//
// Wire shape:
//
//	{"thingId": "ns:local", "attributes": {...}, "features": {"name": {"properties": {"metric": 1}}}}
type Thing struct {
	ThingID    string             `json:"thingId"`
	Attributes map[string]any     `json:"attributes"`
	Features   map[string]Feature `json:"features"`
}

// Feature is a named capability group holding integer metrics.
type Feature struct {
	Properties map[string]int `json:"properties"`
}

// Namespaced joins a namespace and a local id into a Ditto thing id.
func Namespaced(namespace, localID string) string {
	return namespace + ":" + localID
}

// JSON encodes t; attribute values that cannot be encoded surface as an error.
func (t *Thing) JSON() ([]byte, error) {
	return json.Marshal(t)
}
