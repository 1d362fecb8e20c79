package keys

// Expiry derives the name of a region's expiration index (the sorted set
// holding key -> expiry-millis pairs) from the region name.
func Expiry(region string) string {
	return "z:" + region
}

// Timestamp derives the shared counter key the timestamp generator uses.
func Timestamp(name string) string {
	return "timestamp:" + name
}
