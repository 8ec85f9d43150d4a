package violation

import (
	"math"
	"testing"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b Box
		want float64
	}{
		{"identical", Box{0, 0, 10, 10}, Box{0, 0, 10, 10}, 1},
		{"disjoint", Box{0, 0, 10, 10}, Box{20, 20, 30, 30}, 0},
		{"half overlap", Box{0, 0, 10, 10}, Box{5, 0, 15, 10}, 50.0 / 150.0},
		{"contained", Box{0, 0, 10, 10}, Box{0, 0, 5, 10}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IoU(tt.a, tt.b); math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("IoU = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestHeadRegion(t *testing.T) {
	head := DefaultRules().HeadRegion(Box{10, 20, 60, 125})
	if head != (Box{10, 20, 60, 62}) {
		t.Errorf("unexpected head region %+v", head)
	}
}

func TestSummarize(t *testing.T) {
	rules := DefaultRules()
	person := Box{100, 100, 200, 400}

	tests := []struct {
		name       string
		detections []Detection
		person     float64
		helmet     bool
		vehicle    bool
	}{
		{
			name: "helmet on head",
			detections: []Detection{
				{ClassPerson, 0.9, person},
				{ClassHelmet, 0.8, Box{100, 100, 200, 200}},
			},
			person: 0.9,
			helmet: true,
		},
		{
			name: "helmet elsewhere",
			detections: []Detection{
				{ClassPerson, 0.9, person},
				{ClassHelmet, 0.8, Box{300, 300, 400, 400}},
			},
			person: 0.9,
		},
		{
			name: "helmet on another person",
			detections: []Detection{
				{ClassPerson, 0.6, Box{500, 100, 600, 400}},
				{ClassPerson, 0.9, person},
				{ClassHelmet, 0.7, Box{500, 100, 600, 200}},
			},
			person: 0.9,
			helmet: true,
		},
		{
			name: "best person and motorcycle",
			detections: []Detection{
				{ClassPerson, 0.4, person},
				{ClassPerson, 0.7, person},
				{ClassMotorcycle, 0.6, Box{0, 0, 50, 50}},
				{ClassMotorcycle, 0.8, Box{0, 0, 60, 60}},
				{ClassNoHelmet, 0.9, Box{100, 100, 200, 200}},
			},
			person:  0.7,
			vehicle: true,
		},
		{name: "empty frame"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rules.Summarize(tt.detections)
			if s.PersonConfidence != tt.person || s.PersonDetected != (tt.person > 0) {
				t.Errorf("person = %v/%f, want %f", s.PersonDetected, s.PersonConfidence, tt.person)
			}
			if s.HelmetDetected != tt.helmet {
				t.Errorf("helmet = %v, want %v", s.HelmetDetected, tt.helmet)
			}
			if s.VehicleDetected != tt.vehicle {
				t.Errorf("vehicle = %v, want %v", s.VehicleDetected, tt.vehicle)
			}
			if tt.vehicle && (s.VehicleType != ClassMotorcycle || s.VehicleConfidence != 0.8) {
				t.Errorf("unexpected vehicle %s/%f", s.VehicleType, s.VehicleConfidence)
			}
		})
	}
}

func TestIsViolation(t *testing.T) {
	tests := []struct {
		name    string
		rules   func(*Rules)
		summary Summary
		want    bool
	}{
		{"no helmet", nil, Summary{PersonDetected: true, PersonConfidence: 0.8}, true},
		{"helmet worn", nil, Summary{PersonDetected: true, PersonConfidence: 0.8, HelmetDetected: true}, false},
		{"at threshold", nil, Summary{PersonDetected: true, PersonConfidence: 0.5}, true},
		{"low confidence", nil, Summary{PersonDetected: true, PersonConfidence: 0.49}, false},
		{"no person", nil, Summary{}, false},
		{"helmet not required", func(r *Rules) { r.HelmetRequired = false }, Summary{PersonDetected: true, PersonConfidence: 0.9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := DefaultRules()
			if tt.rules != nil {
				tt.rules(&rules)
			}
			if got := rules.IsViolation(tt.summary); got != tt.want {
				t.Errorf("IsViolation = %v, want %v", got, tt.want)
			}
		})
	}
}
