package quota

// Status reports an identity's attempt budget for the current UTC day.
// CanProceed is advisory: the counter never blocks an increment itself,
// callers gate on it before admitting a new attempt.
type Status struct {
	AttemptsToday int64 `json:"attemptsToday"`
	MaxPerDay     int64 `json:"maxPerDay"`
	CanProceed    bool  `json:"canProceed"`
}
