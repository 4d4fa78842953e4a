package metrics

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordMessageSent(string, string)       {}
func (Nop) RecordError(string)                     {}
func (Nop) RecordLastPrice(string, float64)        {}
func (Nop) RecordLatency(string, float64)          {}
func (Nop) RecordCacheResult(string, string)       {}
func (Nop) RecordComponentLatency(string, float64) {}
func (Nop) RecordScore(string, float64, float64)   {}
func (Nop) RecordPublish(string, bool)             {}
