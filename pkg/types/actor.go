package types

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/pkg/enums"
)

// Actor is the authenticated caller of a domain operation. SellerID is set
// for seller tokens that carry their storefront.
type Actor struct {
	UserID   uuid.UUID
	Role     enums.ActorRole
	SellerID *uuid.UUID
}

// SystemActor is used by scheduled sweeps.
var SystemActor = Actor{Role: enums.ActorRoleSystem}

func (a Actor) IsAdmin() bool { return a.Role == enums.ActorRoleAdmin }

func (a Actor) IsSeller() bool { return a.Role == enums.ActorRoleSeller }

func (a Actor) IsUser() bool { return a.Role == enums.ActorRoleUser }

// ActorID returns a pointer to the user id, or nil for the system actor.
func (a Actor) ActorID() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
