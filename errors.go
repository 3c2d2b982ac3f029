// Package buildorch implements the data model for a reproducible,
// multi-distribution build orchestrator: components, distributions,
// templates and build targets, plus the error taxonomy shared by every
// stage of the pipeline.
package buildorch

import "fmt"

// ConfigError reports malformed, missing, or unsafe configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config error: %s", e.Err)
	}
	return fmt.Sprintf("config error (%s): %s", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ComponentError reports a bad source tree or missing/invalid
// version/rel/.qubesbuilder data for a Component.
type ComponentError struct {
	Component string
	Err       error
}

func (e *ComponentError) Error() string {
	return fmt.Sprintf("component %s: %s", e.Component, e.Err)
}

func (e *ComponentError) Unwrap() error { return e.Err }

// NoManifestError is a ComponentError specifically for a missing or
// unreadable .qubesbuilder manifest.
type NoManifestError struct {
	ComponentError
}

// DistributionError reports an unsupported or malformed distribution.
type DistributionError struct {
	Distribution string
	Err          error
}

func (e *DistributionError) Error() string {
	return fmt.Sprintf("distribution %s: %s", e.Distribution, e.Err)
}

func (e *DistributionError) Unwrap() error { return e.Err }

// TemplateError reports a malformed template spec.
type TemplateError struct {
	Template string
	Err      error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %s", e.Template, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// ExecutorError reports a sandbox failure. SandboxName carries the
// disposable VM or container identifier when applicable.
type ExecutorError struct {
	SandboxName string
	Err         error
}

func (e *ExecutorError) Error() string {
	if e.SandboxName == "" {
		return fmt.Sprintf("executor error: %s", e.Err)
	}
	return fmt.Sprintf("executor error (%s): %s", e.SandboxName, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }

// AdditionalInfo points a user at the log evidence behind a PluginError.
type AdditionalInfo struct {
	LogFile    string
	StartLine  int
	Lines      []string
}

// PluginError is the base type for every stage-local failure
// (SourceError, BuildError, SignError, PublishError, UploadError,
// ChrootError, InstallerError are all constructed with Stage set
// accordingly).
type PluginError struct {
	Stage      string
	Plugin     string
	Err        error
	Additional *AdditionalInfo
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s:%s: %s", e.Stage, e.Plugin, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

func newPluginError(stage, plugin string, err error) *PluginError {
	return &PluginError{Stage: stage, Plugin: plugin, Err: err}
}

// SourceError, BuildError, SignError, PublishError, UploadError,
// ChrootError and InstallerError are PluginError with a fixed Stage,
// constructed through their respective New* helpers so callers don't
// have to restate the stage name at every call site.

func NewSourceError(plugin string, err error) *PluginError {
	return newPluginError("fetch", plugin, err)
}

func NewBuildError(plugin string, err error) *PluginError {
	return newPluginError("build", plugin, err)
}

func NewSignError(plugin string, err error) *PluginError {
	return newPluginError("sign", plugin, err)
}

func NewPublishError(plugin string, err error) *PluginError {
	return newPluginError("publish", plugin, err)
}

func NewUploadError(plugin string, err error) *PluginError {
	return newPluginError("upload", plugin, err)
}

func NewChrootError(plugin string, err error) *PluginError {
	return newPluginError("init-cache", plugin, err)
}

func NewInstallerError(plugin string, err error) *PluginError {
	return newPluginError("installer", plugin, err)
}

// CliError is the user-facing top-level wrapper whose presence
// determines the process exit code.
type CliError struct {
	ExitCode int
	Err      error
}

func (e *CliError) Error() string { return e.Err.Error() }
func (e *CliError) Unwrap() error { return e.Err }

// Interrupted marks an error that resulted from SIGINT cancellation
// rather than a genuine failure; the CLI layer still exits non-zero
// (exit code 1) but should not print it as an upstream tool failure.
type Interrupted struct {
	Err error
}

func (e *Interrupted) Error() string { return e.Err.Error() }
func (e *Interrupted) Unwrap() error { return e.Err }
