package models

// Role constants
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// Principal is the authenticated caller as asserted by the main session
// credential.
type Principal struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Valid reports whether the principal carries both identity and tenant.
func (p *Principal) Valid() bool {
	return p != nil && p.UserID != "" && p.TenantID != ""
}
