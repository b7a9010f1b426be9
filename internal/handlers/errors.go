package handlers

import "fmt"

func errMissingService(name string) error {
	return fmt.Errorf("%s service must be provided", name)
}
