package entity

// ReservationResult mirrors the reserve_sessions_atomic contract.
type ReservationResult struct {
	Success        bool
	ReservedCount  int32
	AvailableCount int32
	Error          string
}

// CompletionResult mirrors the complete_order_atomic contract.
type CompletionResult struct {
	Success          bool
	AlreadyCompleted bool
	Error            string
}

type SystemSetting struct {
	Key   string
	Value string
}

// InventorySync is the outcome of recounting one session type.
type InventorySync struct {
	Type     string
	Previous int32
	Counted  int32
	Created  bool
}

// Drift is how far the stored quantity was from the recount.
func (s *InventorySync) Drift() int32 {
	return s.Counted - s.Previous
}
