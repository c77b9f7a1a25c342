package profile

import (
	"sort"

	"github.com/AnyUserName/imgshrink/internal/shrink"
)

// Profile is a named search policy.
type Profile struct {
	Name   string
	Policy shrink.Config
}

// DefaultName is the profile used when none is requested.
const DefaultName = "default"

// Built-in profiles.
var profiles = map[string]Profile{
	"default": {
		Name:   "default",
		Policy: shrink.DefaultConfig(),
	},
	// Small previews: start smaller and drop quality faster.
	"thumbnail": {
		Name: "thumbnail",
		Policy: shrink.Config{
			InitialWidth:   320,
			InitialQuality: 75,
			MinWidth:       64,
			MinQuality:     10,
			WidthStep:      32,
			QualityStep:    5,
		},
	},
	// Keep resolution from the source and give up quality slowly.
	"hq": {
		Name: "hq",
		Policy: shrink.Config{
			InitialWidth:   shrink.AutoWidth,
			InitialQuality: 90,
			MinWidth:       400,
			MinQuality:     40,
			WidthStep:      100,
			QualityStep:    2,
		},
	},
}

// Get returns a profile by name. Falls back to default if unknown.
func Get(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	p := profiles[DefaultName]
	p.Name = name // preserve requested name
	return p
}

// Exists reports whether name is a built-in profile.
func Exists(name string) bool {
	_, ok := profiles[name]
	return ok
}

// Names returns the built-in profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
