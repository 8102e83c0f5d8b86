package models

import "fmt"

type Scanner struct {
	Name     string `json:"name"`
	DeviceID string `json:"deviceId"`
	Backend  string `json:"backend"`
}

// String returns the name shown in selection lists
func (s Scanner) String() string {
	if s.Backend == "" {
		return s.Name
	}
	return fmt.Sprintf("%s (%s)", s.Name, s.Backend)
}
