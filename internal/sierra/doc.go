// Package sierra provides the Sierra program model and its serialized form.
//
// This package contains the program types, the VersionedProgram envelope
// decoder and the Sierra text rendering. All other internal packages import
// sierra; sierra imports nothing internal.
//
// Key design constraints:
//   - Identifiers compare by numeric id only; debug names are cosmetic
//   - Exactly one envelope version ("1") decodes to a Program
//   - All JSON tags use snake_case, matching the upstream serde layout
//   - Values are arbitrary-precision integers, never floats
package sierra
