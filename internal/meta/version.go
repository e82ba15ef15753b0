package meta

import (
	"fmt"
	"runtime"
	"strings"
)

// DevVersion is reported when the binary was built without a version.
const DevVersion = "0.1.0-dev"

// Set with the linker, e.g. -ldflags "-X github.com/luma/lantern/internal/meta.Version=1.2.0"
var (
	Version      string
	Build        string
	Branch       string
	BuildTimeUTC string
)

// Info is the build context of a Lantern binary.
type Info struct {
	Version   string `json:"version"`
	Build     string `json:"build,omitempty"`
	Branch    string `json:"branch,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	Platform  string `json:"platform"`
	GoVersion string `json:"go"`
}

// ClientVersion is the version string sent to servers in CONNECT and
// advertised by the dev server in INFO.
func ClientVersion() string {
	if Version == "" {
		return DevVersion
	}

	return Version
}

func GoVersion() string {
	return runtime.Version()
}

func GetInfo() Info {
	return Info{
		Version:   ClientVersion(),
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: GoVersion(),
	}
}

// String renders the info as a single line, skipping unknown fields.
func (i Info) String() string {
	parts := []string{"lantern " + i.Version}

	if i.Build != "" {
		parts = append(parts, fmt.Sprintf("(%s@%s)", i.Build, i.Branch))
	}

	if i.BuildTime != "" {
		parts = append(parts, "built "+i.BuildTime)
	}

	parts = append(parts, i.Platform, i.GoVersion)

	return strings.Join(parts, " ")
}
