package metrics

// Nop discards every measurement. Used by tests and tools.
type Nop struct{}

func (Nop) RecordStageTransition(string, string)           {}
func (Nop) RecordOutcome(string, string)                   {}
func (Nop) RecordStageLatency(string, float64)             {}
func (Nop) RecordRiskScore(string, int)                    {}
func (Nop) RecordProviderDispatch(string, string, float64) {}
func (Nop) RecordActivePipelines(int)                      {}
func (Nop) RecordError(string)                             {}
func (Nop) RecordLatency(string, float64)                  {}
