// Package mic connects audio.Recorder to the default PortAudio devices.
//
// Callers must run Init before opening devices and Terminate on exit.
// PortAudio is linked only when building with the with_portaudio tag;
// otherwise every function returns ErrUnavailable.
package mic

import "errors"

// ErrUnavailable is returned when the binary was built without PortAudio.
var ErrUnavailable = errors.New("mic: not compiled with portaudio support (build with -tags with_portaudio)")
