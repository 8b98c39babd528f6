// SPDX-License-Identifier: MIT
package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitializeKeepsDevDefaults(t *testing.T) {
	origFlags := *buildFlags
	defer func() { *buildFlags = origFlags }()

	Initialize()

	flags := GetBuildFlags()
	assert.Equal(t, "blinky-time", flags.Name)
	assert.Equal(t, "dev", flags.Version)
}

func TestInitializeAppliesLdflags(t *testing.T) {
	origFlags := *buildFlags
	defer func() {
		*buildFlags = origFlags
		buildName, buildTime, buildCommit, buildVersion = "", "", "", ""
	}()

	buildName = "testapp"
	buildTime = "2026-08-26T00:00:00Z"
	buildCommit = "abcdef123"
	buildVersion = "1.2.3"

	Initialize()

	flags := GetBuildFlags()
	assert.Equal(t, "testapp", flags.Name)
	assert.Equal(t, "2026-08-26T00:00:00Z", flags.Time)
	assert.Equal(t, "abcdef123", flags.Commit)
	assert.Equal(t, "1.2.3", flags.Version)
}
