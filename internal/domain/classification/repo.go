package classification

import "context"

// Unit is the part of a care unit record needed to find its method.
type Unit struct {
	ID                      string `json:"id"`
	HospitalID              string `json:"hospital_id"`
	ClassificationMethodRef string `json:"classification_method_ref,omitempty"`
}

// Hospital is the part of a hospital record needed to find its method.
type Hospital struct {
	ID                      string `json:"id"`
	ClassificationMethodRef string `json:"classification_method_ref,omitempty"`
}

// Source is the records service as seen by this package.
type Source interface {
	GetClassificationMethod(ctx context.Context, idOrKey string) (*Method, error)
	GetUnit(ctx context.Context, unitID string) (*Unit, error)
	GetHospital(ctx context.Context, hospitalID string) (*Hospital, error)
}
