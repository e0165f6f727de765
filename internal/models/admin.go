package models

type Admin struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EmailID      string `json:"email_id"`
	AdminType    string `json:"admin_type,omitempty"`
	HostelName   string `json:"hostel_name"`
	FemaleHostel bool   `json:"female_hostel"`
}
