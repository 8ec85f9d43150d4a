// Package violation turns object detections from a traffic camera frame into
// helmet violation records and fine memos.
package violation

// Detection classes produced by the helmet model.
const (
	ClassPerson     = "person"
	ClassHelmet     = "helmet"
	ClassNoHelmet   = "no_helmet"
	ClassMotorcycle = "motorcycle"
	ClassPlate      = "license_plate"
)

// Box is an axis-aligned pixel box.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width of the box.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height of the box.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Area of the box.
func (b Box) Area() int { return b.Width() * b.Height() }

// IsZero reports whether the box is unset.
func (b Box) IsZero() bool { return b == Box{} }

// IoU returns the intersection over union of a and b.
func IoU(a, b Box) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)
	inter := max(0, x2-x1) * max(0, y2-y1)
	return float64(inter) / (float64(a.Area()+b.Area()-inter) + 1e-6)
}

// Detection is one object found in a frame.
type Detection struct {
	Class      string  `json:"class_name" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Box        Box     `json:"bbox"`
}

// Summary condenses a frame's detections.
type Summary struct {
	PersonDetected    bool
	PersonConfidence  float64
	PersonBox         Box
	HelmetDetected    bool
	HelmetConfidence  float64
	HelmetBox         Box
	VehicleDetected   bool
	VehicleType       string
	VehicleConfidence float64
	VehicleBox        Box
}

// Rules holds the helmet policy.
type Rules struct {
	HelmetRequired      bool
	FineAmount          float64
	ConfidenceThreshold float64
	// HeadRatio is the top fraction of a person box treated as the head.
	HeadRatio float64
	// HelmetIoU is the overlap a helmet needs with a head region to count.
	HelmetIoU float64
}

// DefaultRules returns the standard policy.
func DefaultRules() Rules {
	return Rules{
		HelmetRequired:      true,
		FineAmount:          500.00,
		ConfidenceThreshold: 0.5,
		HeadRatio:           0.4,
		HelmetIoU:           0.4,
	}
}

// HeadRegion returns the upper part of a person box.
func (r Rules) HeadRegion(person Box) Box {
	return Box{
		X1: person.X1,
		Y1: person.Y1,
		X2: person.X2,
		Y2: person.Y1 + int(r.HeadRatio*float64(person.Height())),
	}
}

// Summarize picks the most confident person and motorcycle and decides
// whether any helmet sits on any person's head.
func (r Rules) Summarize(detections []Detection) Summary {
	var s Summary
	var persons, helmets []Detection

	for _, d := range detections {
		switch d.Class {
		case ClassPerson:
			persons = append(persons, d)
			if d.Confidence > s.PersonConfidence {
				s.PersonDetected = true
				s.PersonConfidence = d.Confidence
				s.PersonBox = d.Box
			}
		case ClassHelmet:
			helmets = append(helmets, d)
		case ClassMotorcycle:
			if d.Confidence > s.VehicleConfidence {
				s.VehicleDetected = true
				s.VehicleType = ClassMotorcycle
				s.VehicleConfidence = d.Confidence
				s.VehicleBox = d.Box
			}
		}
	}

	for _, p := range persons {
		head := r.HeadRegion(p.Box)
		for _, h := range helmets {
			if IoU(head, h.Box) > r.HelmetIoU {
				s.HelmetDetected = true
				s.HelmetConfidence = h.Confidence
				s.HelmetBox = h.Box
				return s
			}
		}
	}
	return s
}

// IsViolation reports whether a confidently detected person rides without a helmet.
func (r Rules) IsViolation(s Summary) bool {
	if !r.HelmetRequired {
		return false
	}
	return s.PersonDetected && s.PersonConfidence >= r.ConfidenceThreshold && !s.HelmetDetected
}
