package auth

import "errors"

type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleProducer Role = "PRODUCER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProducer, RoleAdmin:
		return true
	}
	return false
}

// ErrSelfLockout is returned when an admin tries to remove their own access.
var ErrSelfLockout = errors.New("cannot remove your own admin access")
