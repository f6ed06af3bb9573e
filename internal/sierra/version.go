package sierra

// SupportedVersion is the only VersionedProgram version this toolchain decodes.
const SupportedVersion = "1"
