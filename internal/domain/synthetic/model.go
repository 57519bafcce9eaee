package synthetic

// Hospital is one synthetic receiving facility.
type Hospital struct {
	Name        string   `json:"hospital"`
	Specialties []string `json:"specialties"`
	BedsTotal   int      `json:"beds_total"`
	BedsFree    int      `json:"beds_free"`
	ICUTotal    int      `json:"icu_total"`
	ICUFree     int      `json:"icu_free"`
	Load        float64  `json:"load"`
	DistanceKm  int      `json:"distance_km"`
}

// TransferCase is one labeled synthetic transfer report used for training.
type TransferCase struct {
	CaseID        string `json:"case_id"`
	ReportText    string `json:"report_text"`
	TrueSpecialty string `json:"true_specialty"`
	TrueSeverity  string `json:"true_severity"`
}

// Condition links a clinical condition to the specialty and severity it implies.
type Condition struct {
	Name      string
	Specialty string
	Severity  string
}

const (
	SeverityStable   = "stable"
	SeverityUrgent   = "urgent"
	SeverityCritical = "critical"
)

var (
	Specialties = []string{"Emergency", "Surgery", "Cardiology", "Neurology", "Orthopedics", "ICU", "Pediatrics"}

	// SeverityLevels is ordered from least to most urgent.
	SeverityLevels = []string{SeverityStable, SeverityUrgent, SeverityCritical}

	Symptoms = []string{
		"chest pain", "shortness of breath", "bleeding", "high fever",
		"head trauma", "seizure", "low BP", "vomiting",
	}

	Conditions = []Condition{
		{"myocardial infarction", "Cardiology", SeverityCritical},
		{"stroke", "Neurology", SeverityCritical},
		{"internal bleeding", "Surgery", SeverityCritical},
		{"fracture", "Orthopedics", SeverityUrgent},
		{"sepsis", "ICU", SeverityCritical},
		{"appendicitis", "Surgery", SeverityUrgent},
		{"asthma attack", "Emergency", SeverityUrgent},
		{"pediatric dehydration", "Pediatrics", SeverityUrgent},
	}

	RiskWords = []string{"low", "moderate", "high"}

	// Templates use {symptom1}, {symptom2}, {cond}, {risk} and {spec} placeholders.
	Templates = []string{
		"Patient has {symptom1} and {symptom2}. Suspected {cond}. Needs {spec}.",
		"Report indicates {cond} with {symptom1}. Risk is {risk}. Suggested {spec}.",
		"Severe {symptom1}, {symptom2}. Possible {cond}. Transfer to {spec}.",
	}
)

// SeverityRank returns the ordinal of a severity label, or -1 if unknown.
func SeverityRank(sev string) int {
	for i, s := range SeverityLevels {
		if s == sev {
			return i
		}
	}
	return -1
}

// IsSeverity reports whether sev belongs to the severity vocabulary.
func IsSeverity(sev string) bool {
	return SeverityRank(sev) >= 0
}
