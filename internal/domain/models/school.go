package models

// SchoolOption is one entry of the school picker.
type SchoolOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SchoolSwitchingData is the backend's view of which school a user is
// working in and which schools they may move to.
type SchoolSwitchingData struct {
	CurrentSchoolID  string         `json:"currentSchoolId"`
	AvailableSchools []SchoolOption `json:"availableSchools"`
	CanSwitchSchools bool           `json:"canSwitchSchools"`
}

// DefaultSchoolID is the first available school, or "".
func (d SchoolSwitchingData) DefaultSchoolID() string {
	if len(d.AvailableSchools) == 0 {
		return ""
	}
	return d.AvailableSchools[0].ID
}
