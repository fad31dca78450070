package worker

import "time"

// IntervalSelector decides which cycle interval applies right now
// (§4.5 step 5: "the office-hours decision is delegated to a
// collaborator that returns only the current interval"). The worker
// never inspects clock or calendar state itself.
type IntervalSelector interface {
	CurrentInterval() time.Duration
}

// officeHoursSelector is the default collaborator: Vietnamese equity
// trading runs roughly 09:00-15:00 local time (UTC+7) on weekdays.
type officeHoursSelector struct {
	office    time.Duration
	nonOffice time.Duration
	now       func() time.Time
}

// NewOfficeHoursSelector builds the default selector from the
// configured office/non-office intervals.
func NewOfficeHoursSelector(office, nonOffice time.Duration) IntervalSelector {
	return &officeHoursSelector{office: office, nonOffice: nonOffice, now: time.Now}
}

func (s *officeHoursSelector) CurrentInterval() time.Duration {
	local := s.now().UTC().Add(7 * time.Hour)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return s.nonOffice
	}
	hour := local.Hour()
	if hour >= 9 && hour < 15 {
		return s.office
	}
	return s.nonOffice
}
