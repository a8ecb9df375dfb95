package booking

// diffFields is the ordered list of auditable fields. Adding a field here
// is the only change needed to make it show up in the ledger.
var diffFields = []struct {
	name string
	get  func(*Appointment) any
}{
	{"status", func(a *Appointment) any { return string(a.Status) }},
	{"date", func(a *Appointment) any { return a.Date }},
	{"time", func(a *Appointment) any { return a.Time }},
	{"consultation_type", func(a *Appointment) any { return a.ConsultationType }},
	{"proposed_date", func(a *Appointment) any { return strOrNil(a.ProposedDate) }},
	{"proposed_time", func(a *Appointment) any { return strOrNil(a.ProposedTime) }},
	{"proposed_consultation_type", func(a *Appointment) any { return strOrNil(a.ProposedConsultationType) }},
	{"admin_message", func(a *Appointment) any { return strOrNil(a.AdminMessage) }},
	{"patient_message", func(a *Appointment) any { return strOrNil(a.PatientMessage) }},
	{"rejection_reason", func(a *Appointment) any { return strOrNil(a.RejectionReason) }},
	{"cancellation_reason", func(a *Appointment) any { return strOrNil(a.CancellationReason) }},
	{"staff_notes", func(a *Appointment) any { return a.StaffNotes }},
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Diff lists every auditable field whose value differs between the two
// snapshots, in stable order.
func Diff(before, after *Appointment) []FieldChange {
	var out []FieldChange
	for _, f := range diffFields {
		oldV, newV := f.get(before), f.get(after)
		if oldV != newV {
			out = append(out, FieldChange{Field: f.name, Old: oldV, New: newV})
		}
	}
	return out
}

// CreationDiff records the initial values of a freshly created appointment
// as old=nil changes, so the create transition is auditable like any other.
func CreationDiff(a *Appointment) []FieldChange {
	var out []FieldChange
	for _, f := range diffFields {
		v := f.get(a)
		if v == nil || v == "" {
			continue
		}
		out = append(out, FieldChange{Field: f.name, Old: nil, New: v})
	}
	return out
}
