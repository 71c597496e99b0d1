package project

import "time"

// projectsTable is the backing table at the hosted backend.
const projectsTable = "properties"

// Project is a project/property record. Optional numeric columns are
// pointers so an empty form field round-trips as SQL null instead of 0.
type Project struct {
	ID              string    `json:"id,omitempty"`
	ClientName      string    `json:"client_name"`
	ClientEmail     string    `json:"client_email"`
	SiteAddress     string    `json:"site_address"`
	Country         string    `json:"country,omitempty"`
	State           string    `json:"state,omitempty"`
	City            string    `json:"city,omitempty"`
	Pin             string    `json:"pin,omitempty"`
	SiteArea        *float64  `json:"site_area"`
	SiteAreaUnit    string    `json:"site_area_unit,omitempty"`
	ProjectArea     *float64  `json:"project_area"`
	ProjectAreaUnit string    `json:"project_area_unit,omitempty"`
	Basements       *int      `json:"basements"`
	Floors          *int      `json:"floors"`
	BuildingProfile string    `json:"building_profile,omitempty"`
	ProjectCost     *float64  `json:"project_cost"`
	Currency        string    `json:"currency,omitempty"`
	Status          string    `json:"status,omitempty"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
}

// projectColumns is the column set fetched for listings.
var projectColumns = []string{
	"id", "client_name", "client_email", "site_address", "country", "state",
	"city", "pin", "site_area", "site_area_unit", "project_area",
	"project_area_unit", "basements", "floors", "building_profile",
	"project_cost", "currency", "status", "created_at", "created_by",
}
