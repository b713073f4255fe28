package model

// SeverityState is the derived water level and the labels that produced
// it. It is recomputed on every render pass, never accumulated.
type SeverityState struct {
	Level  int
	Labels []string
}

// Clone returns a copy with its own label slice.
func (s SeverityState) Clone() SeverityState {
	labels := make([]string, len(s.Labels))
	copy(labels, s.Labels)
	return SeverityState{Level: s.Level, Labels: labels}
}
