package ports

import "github.com/target/waypoint/internal/domain/model"

// DecisionRecorder observes routing decisions for metrics.
type DecisionRecorder interface {
	// RecordDestination is called once per resolution with the final reason.
	RecordDestination(reason string)
	// RecordRedirectRejected is called once per rejected redirect with its issues.
	RecordRedirectRejected(issues []model.SecurityIssue)
}
