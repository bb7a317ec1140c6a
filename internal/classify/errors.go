package classify

import "fmt"

// InvalidFeatureRecordError reports a feature record whose fields cannot
// be scored (non-finite or out of range). Callers degrade the affected
// device to an uncertain classification instead of aborting the campaign.
type InvalidFeatureRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidFeatureRecordError) Error() string {
	return fmt.Sprintf("invalid feature record: %s %s", e.Field, e.Reason)
}
