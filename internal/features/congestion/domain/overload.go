package domain

import "time"

// OverloadReasonCode classifies why a parcel was diverted or marked.
type OverloadReasonCode string

const (
	ReasonNone                OverloadReasonCode = "None"
	ReasonTimeout             OverloadReasonCode = "Timeout"
	ReasonWindowMiss          OverloadReasonCode = "WindowMiss"
	ReasonCapacityExceeded    OverloadReasonCode = "CapacityExceeded"
	ReasonNodeDegraded        OverloadReasonCode = "NodeDegraded"
	ReasonTopologyUnreachable OverloadReasonCode = "TopologyUnreachable"
	ReasonSensorFault         OverloadReasonCode = "SensorFault"
	ReasonOther               OverloadReasonCode = "Other"
)

// OverloadContext is the per-parcel input of the policy.
type OverloadContext struct {
	Level           CongestionLevel
	InFlightParcels int
	RemainingTTL    time.Duration
	ArrivalWindow   time.Duration
}

// OverloadDecision is the policy verdict for one parcel.
type OverloadDecision struct {
	ShouldForceException      bool               `json:"should_force_exception"`
	ShouldMarkAsOverflow      bool               `json:"should_mark_as_overflow"`
	ShouldPreferRecirculation bool               `json:"should_prefer_recirculation"`
	Reason                    string             `json:"reason,omitempty"`
	ReasonCode                OverloadReasonCode `json:"reason_code"`
}

// ContinueNormal lets the parcel proceed untouched.
func ContinueNormal() OverloadDecision {
	return OverloadDecision{ReasonCode: ReasonNone}
}

// Action names the decision for logs and metrics.
func (d OverloadDecision) Action() string {
	switch {
	case d.ShouldForceException:
		return "force_exception"
	case d.ShouldMarkAsOverflow:
		return "mark_overflow"
	default:
		return "continue"
	}
}

// PolicyConfig holds the overload flags and limits.
type PolicyConfig struct {
	Enabled                      bool
	ForceExceptionOnSevere       bool
	ForceExceptionOnOverCapacity bool
	ForceExceptionOnTimeout      bool
	ForceExceptionOnWindowMiss   bool
	MaxInFlightParcels           int
	MinRequiredTTL               time.Duration
	MinArrivalWindow             time.Duration
	PreferRecirculation          bool
}
