package utils

// Ptr returns a pointer to a copy of v, for optional columns and literals.
func Ptr[T any](v T) *T {
	return &v
}

// ValueOr dereferences v, or returns fallback when v is nil.
func ValueOr[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}
