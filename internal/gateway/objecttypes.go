package gateway

// objectTypeNames maps BACnet object abbreviations used by Delta Controls
// tooling to the full object-type names used in gateway paths.
var objectTypeNames = map[string]string{
	"AC":           "accumulator",
	"ACC":          "access-credential",
	"ACD":          "access-door",
	"ACI":          "credential-data-input",
	"ACP":          "access-point",
	"ACR":          "access-rights",
	"ACU":          "access-user",
	"ACZ":          "access-zone",
	"AE":           "alert-enrollment",
	"AI":           "analog-input",
	"AIC":          "aic",
	"AO":           "analog-output",
	"AOC":          "aoc",
	"AT":           "at",
	"AV":           "analog-value",
	"AVG":          "averaging",
	"BDC":          "bdc",
	"BDE":          "bde",
	"BI":           "binary-input",
	"BO":           "binary-output",
	"BSV":          "bitstring-value",
	"BT":           "bt",
	"BV":           "binary-value",
	"CAL":          "calendar",
	"CNL":          "channel",
	"CO":           "loop",
	"CS":           "command",
	"CSV":          "characterstring-value",
	"DES":          "des",
	"DEV":          "device",
	"DPValue":      "date-pattern-value",
	"DRT":          "drt",
	"DTP":          "datetime-pattern-value",
	"DTV":          "datetime-value",
	"DV":           "date-value",
	"EL":           "event-log",
	"EV":           "event-enrollment",
	"EVC":          "notification-class",
	"FIL":          "file",
	"GGP":          "global-group",
	"GR":           "group",
	"IV":           "integer-value",
	"LAV":          "large-analog-value",
	"LO":           "lighting-output",
	"LS":           "load-control",
	"MI":           "multi-state-input",
	"MIC":          "mic",
	"MO":           "multi-state-output",
	"MOC":          "moc",
	"MT":           "mt",
	"MV":           "multi-state-value",
	"NET":          "net",
	"NF":           "notification-forwarder",
	"NS":           "network-security",
	"ORS":          "ors",
	"OS":           "os",
	"OSV":          "octetstring-value",
	"PC":           "pulse-converter",
	"PG":           "program",
	"PI":           "pi",
	"PIV":          "positive-integer-value",
	"SCH":          "schedule",
	"SV":           "structured-view",
	"TL":           "trend-log",
	"TLM":          "trend-log-multiple",
	"TPV":          "time-pattern-value",
	"TV":           "time-value",
	"Unassigned 1": "unassigned-1",
	"ZN":           "life-safety-zone",
	"ZP":           "life-safety-point",
}

// objectTypeAbbreviations is the reverse of objectTypeNames.
var objectTypeAbbreviations = func() map[string]string {
	m := make(map[string]string, len(objectTypeNames))
	for abbr, name := range objectTypeNames {
		m[name] = abbr
	}
	return m
}()

// ObjectTypeName returns the full type name for an abbreviation ("AV" →
// "analog-value"), or "" if unknown.
func ObjectTypeName(abbr string) string {
	return objectTypeNames[abbr]
}

// ObjectTypeAbbreviation returns the abbreviation for a full type name
// ("analog-value" → "AV"), or "" if unknown.
func ObjectTypeAbbreviation(name string) string {
	return objectTypeAbbreviations[name]
}
