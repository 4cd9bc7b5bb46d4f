package vars

import (
	"sync/atomic"
	"workshop-enrollment/model"
)

// workshopsPtr holds the latest availability snapshot.
// Reads are lock-free; the refresh cron swaps the whole slice.
var workshopsPtr atomic.Pointer[[]model.WorkshopAvailability]

// GetWorkshops returns the current availability snapshot.
func GetWorkshops() []model.WorkshopAvailability {
	ptr := workshopsPtr.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// SetWorkshops replaces the snapshot with a copy of workshops.
// Pass nil or an empty slice to clear it.
func SetWorkshops(workshops []model.WorkshopAvailability) {
	if len(workshops) == 0 {
		workshopsPtr.Store(nil)
		return
	}

	workshopsCopy := make([]model.WorkshopAvailability, len(workshops))
	copy(workshopsCopy, workshops)
	workshopsPtr.Store(&workshopsCopy)
}
