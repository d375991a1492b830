package hubspot

import (
	"encoding/json"
	"time"
)

// Association categories understood by the v4 associations API.
const (
	CategoryHubSpotDefined    = "HUBSPOT_DEFINED"
	CategoryUserDefined       = "USER_DEFINED"
	CategoryIntegratorDefined = "INTEGRATOR_DEFINED"
)

// Common HubSpot defined association type ids.
const (
	TypeContactToCompanyPrimary = 1
	TypeCompanyToContactPrimary = 2
	TypeDealToContact           = 3
	TypeContactToDeal           = 4
	TypeDealToCompanyPrimary    = 5
	TypeCompanyToDealPrimary    = 6
	TypeContactToCompany        = 279
	TypeCompanyToContact        = 280
)

// objectPaths maps supported object types to their API path segment.
var objectPaths = map[string]string{
	"contact":   "contacts",
	"company":   "companies",
	"deal":      "deals",
	"product":   "products",
	"line_item": "line_items",
	"ticket":    "tickets",
}

type objectResponse struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Archived   bool           `json:"archived"`
}

type pagingResponse struct {
	Next *struct {
		After string `json:"after"`
	} `json:"next"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type searchResponse struct {
	Total   int              `json:"total"`
	Results []objectResponse `json:"results"`
	Paging  *pagingResponse  `json:"paging"`
}

type propertiesRequest struct {
	Properties map[string]string `json:"properties"`
}

type associationsResponse struct {
	Results []associationResult `json:"results"`
	Paging  *pagingResponse     `json:"paging"`
}

type associationResult struct {
	ToObjectID       json.Number       `json:"toObjectId"`
	AssociationTypes []associationType `json:"associationTypes"`
}

type associationType struct {
	Category string `json:"category"`
	TypeID   int    `json:"typeId"`
	Label    string `json:"label,omitempty"`
}

type associationSpecRequest struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}
