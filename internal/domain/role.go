package domain

import "fmt"

// Role is the closed set of storefront account roles.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleEmployee   Role = "FUNCIONARIO"
	RoleCustomer   Role = "CLIENTE"
	RoleSubscriber Role = "ASSINANTE"
	RoleAffiliate  Role = "AFILIADO"
)

// DefaultHomeRoute is used when a role has no dedicated landing page.
const DefaultHomeRoute = "/"

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleEmployee, RoleCustomer, RoleSubscriber, RoleAffiliate}
}

// ParseRole converts a stored or wire value into a Role.
func ParseRole(value string) (Role, error) {
	role := Role(value)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return role, nil
}

// Valid reports whether r is one of the declared roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEmployee, RoleCustomer, RoleSubscriber, RoleAffiliate:
		return true
	}
	return false
}

// HomeRoute is where a role lands after login or when denied access to an area.
func (r Role) HomeRoute() string {
	switch r {
	case RoleAdmin:
		return "/dashboard/admin"
	case RoleEmployee:
		return "/dashboard/funcionario"
	case RoleCustomer, RoleSubscriber:
		return "/conta"
	case RoleAffiliate:
		return "/dashboard/afiliado"
	default:
		return DefaultHomeRoute
	}
}

func (r Role) String() string {
	return string(r)
}
