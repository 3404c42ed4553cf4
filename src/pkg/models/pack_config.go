package models

// PackConfig describes one policy project: where the policy module lives, how
// it is bundled, and which manifests are rendered from the bundle.
// Relative paths are resolved against the project directory.
type PackConfig struct {
	Entry           string           `yaml:"entry"`
	Engine          string           `yaml:"engine"` // "go" or "webpack"
	BundlePath      string           `yaml:"bundlePath"`
	Marker          string           `yaml:"marker"`
	MaxPayloadBytes int              `yaml:"maxPayloadBytes,omitempty"` // 0 disables the limit
	Templates       []TemplateConfig `yaml:"templates"`
	Webpack         WebpackConfig    `yaml:"webpack,omitempty"`
}

// TemplateConfig is a manifest template and where its rendered copy goes.
type TemplateConfig struct {
	Path       string `yaml:"path"`
	Output     string `yaml:"output"`
	Substitute bool   `yaml:"substitute"` // true: the marker is replaced by the bundle payload
}

// WebpackConfig holds settings for the webpack engine only.
type WebpackConfig struct {
	Command    []string `yaml:"command,omitempty"`    // e.g. ["npx", "webpack-cli"]
	ConfigFile string   `yaml:"configFile,omitempty"` // relative to the project directory
	Timeout    string   `yaml:"timeout,omitempty"`    // Go duration, e.g. "2m"
}
