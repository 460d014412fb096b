package formdispatch

import "github.com/xraph/formdispatch/id"

// ID is the identity assigned to every stored response.
type ID = id.ID
