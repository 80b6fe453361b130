package enums

// ActorRole is the role claim carried by access tokens.
type ActorRole string

const (
	ActorRoleAdmin  ActorRole = "admin"
	ActorRoleSeller ActorRole = "seller"
)

var validActorRoles = []ActorRole{ActorRoleAdmin, ActorRoleSeller}

func (a ActorRole) String() string { return string(a) }

func (a ActorRole) IsValid() bool { return member(validActorRoles, a) }
