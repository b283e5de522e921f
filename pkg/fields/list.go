package fields

import "fmt"

// Clone returns a copy of list that shares no payload storage with it.
func Clone(list []Field) []Field {
	if list == nil {
		return nil
	}
	out := make([]Field, len(list))
	for i, f := range list {
		f.payload = clonePayload(f.payload)
		out[i] = f
	}
	return out
}

// Replace returns a new list with the field at index i swapped for f.
func Replace(list []Field, i int, f Field) ([]Field, error) {
	if i < 0 || i >= len(list) {
		return nil, fmt.Errorf("index %d out of range", i)
	}
	out := Clone(list)
	out[i] = f
	return out, nil
}

// Insert returns a new list with f placed at index i (clamped to the bounds).
func Insert(list []Field, i int, f Field) []Field {
	if i < 0 {
		i = 0
	}
	if i > len(list) {
		i = len(list)
	}
	out := make([]Field, 0, len(list)+1)
	out = append(out, Clone(list[:i])...)
	out = append(out, f)
	out = append(out, Clone(list[i:])...)
	return out
}

// Remove returns a new list without the field at index i.
func Remove(list []Field, i int) ([]Field, error) {
	if i < 0 || i >= len(list) {
		return nil, fmt.Errorf("index %d out of range", i)
	}
	out := make([]Field, 0, len(list)-1)
	out = append(out, Clone(list[:i])...)
	out = append(out, Clone(list[i+1:])...)
	return out, nil
}

// Move returns a new list with the field at from relocated to to.
func Move(list []Field, from, to int) ([]Field, error) {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return nil, fmt.Errorf("move %d -> %d out of range", from, to)
	}
	f := list[from]
	rest, _ := Remove(list, from)
	return Insert(rest, to, f), nil
}

// IndexOf returns the position of the field with id, or -1.
func IndexOf(list []Field, id string) int {
	for i, f := range list {
		if f.id == id {
			return i
		}
	}
	return -1
}

// CountContent returns the number of non-navigation fields in list.
func CountContent(list []Field) int {
	n := 0
	for _, f := range list {
		if !f.fieldType.IsNavigation() {
			n++
		}
	}
	return n
}
