package domain

// MonitoringEntry is one month of recorded savings for an initiative.
type MonitoringEntry struct {
	ID               int64      `json:"id"`
	InitiativeID     int64      `json:"initiativeId"`
	MonitoringMonth  string     `json:"monitoringMonth"`
	KPIDescription   string     `json:"kpiDescription"`
	TargetValue      float64    `json:"targetValue"`
	AchievedValue    float64    `json:"achievedValue"`
	Deviation        *float64   `json:"deviation,omitempty"`
	DeviationPercent *float64   `json:"deviationPercent,omitempty"`
	Remarks          string     `json:"remarks,omitempty"`
	IsFinalized      YesNo      `json:"isFinalized"`
	FAApproval       YesNo      `json:"faApproval"`
	FAComments       string     `json:"faComments,omitempty"`
	EnteredBy        string     `json:"enteredBy,omitempty"`
	CreatedAt        *Timestamp `json:"createdAt,omitempty"`
}

// EligibleForFA reports whether F&A may still approve the entry.
func (m MonitoringEntry) EligibleForFA() bool {
	return bool(m.IsFinalized) && !bool(m.FAApproval)
}

// DeviationValue returns achieved minus target unless the backend sent one.
func (m MonitoringEntry) DeviationValue() float64 {
	if m.Deviation != nil {
		return *m.Deviation
	}
	return m.AchievedValue - m.TargetValue
}

// DeviationPct returns the deviation as a percentage of target.
func (m MonitoringEntry) DeviationPct() float64 {
	if m.DeviationPercent != nil {
		return *m.DeviationPercent
	}
	return Percent(m.DeviationValue(), m.TargetValue)
}

// AllFinalized reports whether every entry is finalized. An empty slice is not.
func AllFinalized(entries []MonitoringEntry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, entry := range entries {
		if !entry.IsFinalized {
			return false
		}
	}
	return true
}

// EligibleForFA filters entries F&A can still approve, preserving order.
func EligibleForFA(entries []MonitoringEntry) []MonitoringEntry {
	var out []MonitoringEntry
	for _, entry := range entries {
		if entry.EligibleForFA() {
			out = append(out, entry)
		}
	}
	return out
}
