package domain

// Role is the authorization scope of a connected subject.
type Role string

const (
	RoleDriver Role = "driver"
	RoleParent Role = "parent"
	RoleAdmin  Role = "admin"
)

// Identity is the result of verifying a credential: who the subject is and
// which role they act under. Credential issuance lives outside this system.
type Identity struct {
	SubjectID string
	Role      Role
}
