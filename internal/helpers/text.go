package helpers

// HasText reports whether s points at a non-empty string.
func HasText(s *string) bool {
	return s != nil && *s != ""
}

// CurrentOrEmpty returns the text or an empty string.
func CurrentOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
