package ticketq

import "github.com/opsdeck/ticketq/id"

// ID is the primary identifier type for all ticketq entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
