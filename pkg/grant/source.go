package grant

import "fmt"

// PermissionSetSource is the resolved origin of a permission set, decided
// once at request-validation time. Exactly one of the two concrete types
// implements it: FromTemplate or Custom.
type PermissionSetSource interface {
	isPermissionSetSource()
}

// FromTemplate materializes a permission set from a named catalog template,
// with optional request-level overrides merged in.
type FromTemplate struct {
	Name      string
	Overrides *CustomPermissionSpec
}

func (FromTemplate) isPermissionSetSource() {}

// Custom materializes a permission set from explicit request fields.
type Custom struct {
	Spec CustomPermissionSpec
}

func (Custom) isPermissionSetSource() {}

// ResolvePermissionSetSource validates and resolves the permission source
// fields of a request into the tagged form. A request naming a template
// uses FromTemplate (remaining custom fields become overrides); a request
// with only custom fields uses Custom; a request with neither is an error.
func ResolvePermissionSetSource(req AccessGrantRequest) (PermissionSetSource, error) {
	if req.CustomPermissions != nil && req.CustomPermissions.SessionDuration != "" {
		if !ValidSessionDuration(req.CustomPermissions.SessionDuration) {
			return nil, fmt.Errorf("invalid session duration %q: want PT<n>H or PT<n>M", req.CustomPermissions.SessionDuration)
		}
	}
	if req.PermissionTemplate != "" {
		return FromTemplate{Name: req.PermissionTemplate, Overrides: req.CustomPermissions}, nil
	}
	if req.CustomPermissions != nil {
		return Custom{Spec: *req.CustomPermissions}, nil
	}
	return nil, fmt.Errorf("request must name a permission template or provide custom permissions")
}
