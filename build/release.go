package build

// Release identifies which build of the module is running. It mirrors the
// three-way split used throughout the codebase ("standard", "dev",
// "testing") so that Var and Critical behave the same way in tests as they
// do embedded in a long-running client.
var Release = "standard"

// DEBUG controls whether Critical and Severe panic in addition to logging.
// Test binaries want the panic so failures are loud; a deployed client
// wants to keep running and rely on the logged stack trace instead.
var DEBUG = false
