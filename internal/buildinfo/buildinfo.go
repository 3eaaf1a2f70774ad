// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/clinicdesk/patientkeeper/internal/buildinfo.Version=v1.2.3"
var (
	Version   string
	BuildDate string
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	Revision  string `json:"revision,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns metadata for the running binary. The VCS revision comes from
// the Go build info when the binary was built inside a checkout.
func Get() Info {
	info := Info{
		Version:   orUnknown(Version),
		BuildDate: orUnknown(BuildDate),
		GoVersion: runtime.Version(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				info.Revision = s.Value
			}
		}
	}
	return info
}

func (i Info) String() string {
	s := fmt.Sprintf("patientkeeper %s (built %s, %s)", i.Version, i.BuildDate, i.GoVersion)
	if i.Revision != "" {
		s += " revision " + i.Revision
	}
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
