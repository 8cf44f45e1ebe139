package domain

import "fmt"

type ListState int

const (
	ListIdle ListState = iota
	ListLoading
	ListReady
	ListError
)

func (s ListState) String() string {
	switch s {
	case ListLoading:
		return "loading"
	case ListReady:
		return "ready"
	case ListError:
		return "error"
	default:
		return "idle"
	}
}

func (s ListState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ListState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = ListIdle
	case "loading":
		*s = ListLoading
	case "ready":
		*s = ListReady
	case "error":
		*s = ListError
	default:
		return fmt.Errorf("unknown list state %q", text)
	}
	return nil
}
