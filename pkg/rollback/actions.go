package rollback

// Kind labels a compensation action for logging and result reporting.
type Kind string

const (
	KindDeleteAssignment              Kind = "DELETE_ASSIGNMENT"
	KindDeletePermissionSet           Kind = "DELETE_PERMISSION_SET"
	KindRestoreAssignment             Kind = "RESTORE_ASSIGNMENT"
	KindDeleteIdentityGroup           Kind = "DELETE_IDENTITY_GROUP"
	KindRemoveEnterpriseAppAssignment Kind = "REMOVE_ENTERPRISE_APP_ASSIGNMENT"
)

// Action is a tagged compensation record. Each concrete type carries
// exactly the fields its compensating call needs.
type Action interface {
	Kind() Kind
}

// DeleteAssignment compensates a successful account assignment by deleting
// it and polling the asynchronous deletion to completion.
type DeleteAssignment struct {
	GroupID          string
	AccountID        string
	PermissionSetRef string
}

func (DeleteAssignment) Kind() Kind { return KindDeleteAssignment }

// DeletePermissionSet compensates a successful permission set creation.
type DeletePermissionSet struct {
	Ref string
}

func (DeletePermissionSet) Kind() Kind { return KindDeletePermissionSet }

// RestoreAssignment compensates a deletion by re-creating the assignment.
type RestoreAssignment struct {
	GroupID          string
	AccountID        string
	PermissionSetRef string
}

func (RestoreAssignment) Kind() Kind { return KindRestoreAssignment }

// DeleteIdentityGroup compensates a successful identity group creation.
type DeleteIdentityGroup struct {
	GroupID string
}

func (DeleteIdentityGroup) Kind() Kind { return KindDeleteIdentityGroup }

// RemoveEnterpriseAppAssignment compensates a successful enterprise
// application binding, using the assignment id captured at bind time.
type RemoveEnterpriseAppAssignment struct {
	GroupID      string
	AssignmentID string
	AppID        string
}

func (RemoveEnterpriseAppAssignment) Kind() Kind {
	return KindRemoveEnterpriseAppAssignment
}
