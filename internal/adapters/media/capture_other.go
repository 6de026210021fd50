//go:build !linux

package media

import "errors"

var ErrNoCapture = errors.New("media capture not supported on this platform")

func Capture() (*Source, error) {
	return nil, ErrNoCapture
}
