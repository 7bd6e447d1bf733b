package schema

import "errors"

// ErrParse is returned (wrapped) when remote content cannot be decoded.
//
// Callers are expected to degrade to defaults rather than fail:
//
//	list, err := schema.ParseTaskList(data)
//	if errors.Is(err, schema.ErrParse) {
//	    // keep an empty list, log the problem
//	}
var ErrParse = errors.New("malformed content")

// ErrUnsupportedSnapshot is returned for metadata snapshots written by a newer
// major version of the format.
var ErrUnsupportedSnapshot = errors.New("unsupported snapshot version")
