package bastion

import "github.com/xraph/bastion/id"

// ID is the identifier type shared by every Bastion entity.
type ID = id.ID
