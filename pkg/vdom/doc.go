// Package vdom provides the virtual node and patch model for Recce.
//
// In Recce's server-driven architecture the view trees live on the server.
// Views render VNode trees once; afterwards the server mutates presentation
// through Patch operations streamed to the client. Patches are deliberately
// small: the interesting ones for the shell are SetAttr and RemoveAttr on the
// "hidden" attribute, which show and hide whole view subtrees without ever
// removing them from the live tree.
//
// # Core Types
//
// VNode represents elements, text, and fragments. Props holds attributes.
// Patch is a single presentation operation addressed by a node's stable HID.
//
// # Visibility
//
// NewShowPatch and NewHidePatch are the non-destructive visibility toggle:
// they flip the hidden attribute on a container node and are the only way
// the shell changes which view is presented.
package vdom
