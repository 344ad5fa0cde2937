/*
Package component discovers and drives modular add-ons.

A component is a subdirectory of the components root carrying a manifest
(component.yaml, .yml or .json) and optionally a start_component script.
The manifest's dependencies key accepts two spellings:

	dependencies:
	  - storage
	  - api

or the map form, whose engine constraints (core_version and similar) are
lifted into the engine-version field while the remaining keys become
hard component dependencies:

	dependencies:
	  core_version: ">=1.0"
	  storage: "^2"

Load order comes from Kahn's algorithm over the hard-dependency graph,
tie-broken on (load_order, name) ascending so enumeration order never
matters. A cycle or an unknown dependency rejects the whole set: LoadAll
loads nothing.

Lifecycle per component:

	Discovered ─Load─► Loaded ─Enable─► Enabled ─Disable─► Disabled ─Unload─► Unloaded
	                                        │
	                                 startup failure ─► Failed

Components with a start_component script run out of process: Enable
spawns the script with AETHERIUS_COMPONENT_MODE=1 in its environment and
watches stdout for the line

	AETHERIUS_COMPONENT_STATUS: READY

Ready means enabled with the child serving in the background. A startup
timeout (default 60s) leaves the child running with a warning; a
non-zero exit before the marker marks the component Failed. The script
is never required to exit: long-running web services are the common
case. Script-less components are configuration-only and transition
states without a child.

Every transition fires ComponentStateChanged on the engine bus. The same
Loader serves both the components/ and plugins/ trees.
*/
package component
