package template

// Defaults for a policy project, relative to the project directory
const (
	DefaultMarker             = "##BUNDLE##"
	FileNamePolicyTemplate    = "templates/jspolicy.yaml"
	FileNameBundleTemplate    = "templates/jspolicybundle.yaml"
	FileNamePolicyManifest    = "manifests/jspolicy.yaml"
	FileNameBundleManifest    = "manifests/jspolicybundle.yaml"
	FileNameGoBundle          = "dist/bundle.go"
	FileNameWebpackBundle     = "dist/bundle.js"
	FileNameWebpackConfig     = "webpack.config.js"
	FileNamePackConfig        = "policypack.yaml"
	BundleSourceHeaderComment = "// Code generated by gitops-policypack. DO NOT EDIT."
)
