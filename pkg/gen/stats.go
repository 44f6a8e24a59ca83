package gen

// Count returns the number of elements of src that are equal to v
func Count[T comparable](src []T, v T) int {
	n := 0
	for _, el := range src {
		if el == v {
			n++
		}
	}
	return n
}
