package manifest

// Manifest is the top-level output of a batch run.
type Manifest struct {
	Version     int              `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	Profile     string           `json:"profile"`
	TargetKB    float64          `json:"target_kb"`
	Policy      Policy           `json:"policy"`
	BuildInfo   *BuildInfo       `json:"build_info,omitempty"`
	Assets      map[string]Asset `json:"assets"`
	Stats       Stats            `json:"stats"`
}

// Policy records the search parameters the batch ran with.
type Policy struct {
	InitialWidth   int `json:"initial_width"` // 0 = source largest dimension
	InitialQuality int `json:"initial_quality"`
	MinWidth       int `json:"min_width"`
	MinQuality     int `json:"min_quality"`
	WidthStep      int `json:"width_step"`
	QualityStep    int `json:"quality_step"`
}

// BuildInfo captures run-time parameters for diagnostics.
type BuildInfo struct {
	Workers int `json:"workers"`
}

// Asset describes one source image and its compressed output.
type Asset struct {
	Original OriginalInfo `json:"original"`
	Output   Output       `json:"output"`
}

// OriginalInfo holds metadata about the source image.
type OriginalInfo struct {
	Path   string `json:"path"` // relative to the input directory
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// Output is the final attempt of the search for one asset.
type Output struct {
	Path     string  `json:"path"` // relative to the manifest
	Format   string  `json:"format"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Size     int64   `json:"size"`    // bytes on disk
	SizeKB   float64 `json:"size_kb"` // size / 1024
	Hash     string  `json:"hash"`    // 16 hex chars of xxhash64
	MaxWidth int     `json:"max_width"`
	Quality  int     `json:"quality"`
	Attempts int     `json:"attempts"`
	GoalMet  bool    `json:"goal_met"`
}

// Stats aggregates batch metrics.
type Stats struct {
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	TotalAssets      int   `json:"total_assets"`
	GoalMet          int   `json:"goal_met"`
	GoalMissed       int   `json:"goal_missed"`
	Failed           int   `json:"failed,omitempty"`
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1

// FileName is the manifest's name inside an output directory.
const FileName = "imgshrink.manifest.json"
