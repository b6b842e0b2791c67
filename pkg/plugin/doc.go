// Package plugin holds the tool registry: declarations bound to handlers,
// classified by ToolType, and the Loader that populates the registry once
// from an explicit list of plugins.
//
// Handlers share one signature. What a handler receives is decided by its
// ToolType: SYSTEM_CTL and WAIT handlers see only their arguments, IOT_CTL
// and CHANGE_SYS_PROMPT handlers also get the caller's session.
package plugin
