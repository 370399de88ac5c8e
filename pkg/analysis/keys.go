package analysis

// CompanyKey returns the identity used to deduplicate company results.
// CompanyID wins over CompanyName; an empty string counts as absent, so a
// record with an empty id falls back to its name instead of colliding with
// every other id-less record. ok is false when neither is set.
func CompanyKey(r *EntityResult) (key string, ok bool) {
	if r == nil {
		return "", false
	}
	if r.CompanyID != "" {
		return "id:" + r.CompanyID, true
	}
	if r.CompanyName != "" {
		return "name:" + r.CompanyName, true
	}
	return "", false
}

// DriverKey returns the identity used to merge driver records within one
// company. DriverName wins over DriverID, with the same empty-string rule as
// CompanyKey.
func DriverKey(d DriverRecord) (key string, ok bool) {
	if d.DriverName != "" {
		return "name:" + d.DriverName, true
	}
	if d.DriverID != "" {
		return "id:" + d.DriverID, true
	}
	return "", false
}
