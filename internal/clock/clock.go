// Package clock declares the time source used by import coordination.
package clock

import "time"

// Clock abstracts time.Now so tests can control operation timestamps.
type Clock interface {
	Now() time.Time
}
