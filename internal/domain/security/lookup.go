package security

import "context"

// DrugConflict describes a known conflict between a patient and a drug.
type DrugConflict struct {
	RuleID   string `json:"ruleId"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// AllergyLookup is the contract for the upstream prescription checker. The
// guard itself never calls it; callers that gate prescriptions before
// submitting events do, against the record store they own.
type AllergyLookup interface {
	Check(ctx context.Context, patientID, drugName string) ([]DrugConflict, error)
}
