package assessment

import (
	"strings"
)

// Summary renders the one-line handover text read out when a patient is
// passed to the next team.
func Summary(patientID string, f Fields) string {
	var b strings.Builder
	b.WriteString("Patient ID: " + patientID)
	if f.Name != "" {
		b.WriteString(" | Patient Name: " + f.Name)
	}
	gender := f.Gender
	if gender == "" {
		gender = "Patient"
	}
	b.WriteString(" | " + gender)

	var parts []string
	if f.Age != "" {
		parts = append(parts, f.Age+"yo")
	}
	if f.GCS != "" {
		parts = append(parts, "GCS "+f.GCS)
	}
	if f.RespiratoryRate != "" {
		parts = append(parts, "RR "+f.RespiratoryRate)
	}
	if f.SpO2 != "" {
		sat := "SpO₂ " + f.SpO2 + "%"
		if f.OxygenSupport != "" && f.OxygenSupport != "Room Air" {
			sat += " on " + f.OxygenSupport
		} else {
			sat += " RA"
		}
		parts = append(parts, sat)
	} else if f.OxygenSupport != "" && f.OxygenSupport != "Room Air" {
		parts = append(parts, "on "+f.OxygenSupport)
	}
	if f.BloodPressure != "" {
		parts = append(parts, "BP "+f.BloodPressure)
	}
	if f.HeartRate != "" {
		parts = append(parts, "HR "+f.HeartRate)
	}

	if f.AirwayPatent {
		parts = append(parts, "airway patent")
	}
	if f.BreathSounds != "" && f.BreathSounds != "Normal vesicular" {
		parts = append(parts, "breath sounds: "+f.BreathSounds)
	}
	if f.CapillaryRefill != "" {
		parts = append(parts, "CRT "+f.CapillaryRefill)
	}
	if f.Pupils != "" && f.Pupils != "PEARL" {
		parts = append(parts, "pupils: "+f.Pupils)
	}
	if f.Bleeding {
		if f.BleedingLocation != "" {
			parts = append(parts, "bleeding: "+f.BleedingLocation)
		} else {
			parts = append(parts, "active bleeding")
		}
	} else {
		parts = append(parts, "no obvious external bleeding")
	}

	if len(parts) > 0 {
		b.WriteString(", " + strings.Join(parts, ", "))
	}
	if f.AdditionalNotes != "" {
		b.WriteString(". Additional: " + f.AdditionalNotes)
	}
	return b.String()
}
