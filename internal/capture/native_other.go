//go:build !windows

package capture

import (
	"github.com/roach88/mestouches/internal/engine"
)

// NativeSource returns ErrUnsupported outside Windows.
func NativeSource() (Source, error) { return nil, ErrUnsupported }

// NativeWindowSource returns ErrUnsupported outside Windows.
func NativeWindowSource() (WindowSource, error) { return nil, ErrUnsupported }

// NativeResolver resolves nothing outside Windows.
func NativeResolver() Resolver { return NopResolver{} }

// NativeScreens returns ErrUnsupported outside Windows; callers fall back
// to a configured static screen set.
func NativeScreens() (engine.ScreenSource, error) { return nil, ErrUnsupported }
