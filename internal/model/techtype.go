package model

// TechType is the classifier's assigned label for a fictional technology.
type TechType string

const (
	TechTypeWeapon    TechType = "weapon"
	TechTypeVehicle   TechType = "vehicle"
	TechTypeDevice    TechType = "device"
	TechTypeRobot     TechType = "robot"
	TechTypeSystem    TechType = "system"
	TechTypeEquipment TechType = "equipment"

	// TechTypeNone marks a page that did not classify as any technology.
	TechTypeNone TechType = "none"
)

// AllTechTypes returns every classifiable tech type. The order doubles as
// the tie-break priority: when two types score equally, the earlier one wins,
// so the same text always classifies identically across runs.
func AllTechTypes() []TechType {
	return []TechType{
		TechTypeWeapon,
		TechTypeVehicle,
		TechTypeDevice,
		TechTypeRobot,
		TechTypeSystem,
		TechTypeEquipment,
	}
}

// RejectReason explains why a page produced no dataset entry.
type RejectReason string

const (
	// ReasonNone means the page was accepted.
	ReasonNone RejectReason = ""

	// ReasonLength means the content was shorter than the minimum.
	ReasonLength RejectReason = "length"

	// ReasonExcluded means exclusion patterns (biography, plot summary)
	// dominated the content.
	ReasonExcluded RejectReason = "excluded"

	// ReasonNoMatch means no technology pattern matched at all.
	ReasonNoMatch RejectReason = "nomatch"
)

// ClassificationResult is the classifier's verdict on one page. It is
// transient: the worker pool consumes it immediately.
type ClassificationResult struct {
	TechType   TechType     `json:"tech_type"`
	Confidence float64      `json:"confidence"`
	Rejected   bool         `json:"rejected"`
	Reason     RejectReason `json:"reason,omitempty"`
}
